// Package store provides interfaces and types for game-mail storage.
// Implementations are in store/memory, store/postgres, and store/mongo.
//
// # Architectural Principle: No Counter State
//
// Rate-limit decisions are made from the persisted message log itself, not
// from separate counters. Every admission check is a bounded range query
// over prior rows (existence of a recent duplicate, timestamp of the last
// send, counts over trailing windows). This trades a small query cost for
// exact consistency with the stored log: there is no cache to invalidate
// and no counter that can drift from the rows it is supposed to summarize.
//
// Concurrency within a backend is handled through database-level atomicity:
//
//  1. Message + attachments are inserted in a single transaction (or a
//     single document write for MongoDB) - partial attachment lists are
//     never visible.
//
//  2. Read transitions use conditional updates guarded by the current
//     is_read value, so concurrent MarkRead calls set read_at exactly once.
//
//  3. Soft deletes set one party's flag without touching the other's.
//
// Serializing the admission-check-then-insert sequence per sender is the
// service's job, not the store's; see the gamemail package.
package store

import (
	"context"
	"time"
)

// Store is the storage interface for the mail system.
//
// All operations must be safe for concurrent use. Implementations rely on
// database-level atomicity (transactions, conditional updates) rather than
// external locking. See the package documentation for details.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// User operations - accounts are owned by the auth subsystem
	UserStore

	// Message operations - insert, visibility-checked reads, flag updates
	MessageStore

	// Send history - bounded-window queries backing spam admission checks
	SendHistory
}

// UserStore provides account persistence for the auth subsystem.
type UserStore interface {
	// CreateUser persists a new user. The ID and CreatedAt fields are
	// assigned by the store. Returns ErrDuplicateEntry if the username or
	// email is already registered.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUser retrieves a user by ID.
	// Returns ErrNotFound if the user doesn't exist.
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	// Returns ErrNotFound if the user doesn't exist.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetUserActive flips the active flag. Deactivation does not touch the
	// user's messages: Message rows keep referencing the user ID.
	SetUserActive(ctx context.Context, id int64, active bool) error
}

// MessageStore provides operations for mail messages.
type MessageStore interface {
	// InsertMessage persists a message and all of its attachments as one
	// atomic unit. The store assigns the message ID, attachment IDs, and
	// CreatedAt (server clock, UTC). Returns the stored message.
	InsertMessage(ctx context.Context, msg *Message) (*Message, error)

	// GetMessage retrieves a message by ID on behalf of viewerID.
	// Returns ErrForbidden if the viewer is not a party to the message,
	// and ErrNotFound if the message doesn't exist or the viewer has
	// soft-deleted it (indistinguishable by design).
	GetMessage(ctx context.Context, id, viewerID int64) (*Message, error)

	// ListInbox returns messages received by userID and not deleted by
	// them, newest first. Honors ListOptions.UnreadOnly.
	ListInbox(ctx context.Context, userID int64, opts ListOptions) (*MessageList, error)

	// ListSent returns messages sent by userID and not deleted by them,
	// newest first.
	ListSent(ctx context.Context, userID int64, opts ListOptions) (*MessageList, error)

	// MarkRead marks a message read on behalf of viewerID. Only the
	// recipient may mark a message read (ErrForbidden otherwise). The
	// transition is idempotent: the first call sets is_read and read_at;
	// repeated calls are no-ops and must not overwrite read_at. The
	// implementation must guard the update with the current is_read value
	// so concurrent calls set read_at exactly once.
	// Returns the message in its post-transition state and whether this
	// call performed the unread-to-read transition. Exactly one of any
	// set of concurrent calls observes true.
	MarkRead(ctx context.Context, id, viewerID int64) (*Message, bool, error)

	// SoftDelete hides the message from viewerID by setting their deletion
	// flag. The other party's view is unaffected. Deleting an already
	// hidden or missing message returns ErrNotFound; a non-party viewer
	// gets ErrForbidden.
	SoftDelete(ctx context.Context, id, viewerID int64) error

	// CountUnread returns the number of unread inbox messages for userID,
	// excluding messages the user has soft-deleted.
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

// SendHistory provides the bounded-window queries the rate limiter runs
// before a send is admitted. All three read the same message log the
// messages are written to, so checks always observe exactly what has been
// persisted - the message under evaluation is not yet inserted and never
// counts against itself.
type SendHistory interface {
	// HasRecentDuplicate reports whether a message with identical sender,
	// recipient, subject and body was created at or after since.
	HasRecentDuplicate(ctx context.Context, senderID, recipientID int64, subject, body string, since time.Time) (bool, error)

	// LastSendTime returns the created_at of the sender's most recent
	// message (any recipient) created at or after since. The second return
	// is false when no such message exists.
	LastSendTime(ctx context.Context, senderID int64, since time.Time) (time.Time, bool, error)

	// CountSentSince returns the number of messages the sender created at
	// or after since, regardless of recipient or deletion flags - soft
	// deletes do not reset rate windows.
	CountSentSince(ctx context.Context, senderID int64, since time.Time) (int64, error)
}
