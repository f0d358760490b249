package store

import (
	"time"
)

// User is an account known to the mail system. Accounts are owned by the
// authentication subsystem; the mail core reads ID and Active only.
type User struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Active       bool       `json:"is_active" db:"active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Attachment is an item or currency grant carried by a message.
// Attachments are created atomically with their owning message and are
// never mutated afterwards. If the message row is ever hard-deleted the
// attachments go with it.
type Attachment struct {
	ID        int64          `json:"id" db:"id"`
	MessageID int64          `json:"message_id" db:"message_id"`
	Type      string         `json:"attachment_type" db:"type"`
	ItemID    *int64         `json:"item_id,omitempty" db:"item_id"`
	ItemName  string         `json:"item_name,omitempty" db:"item_name"`
	Quantity  float64        `json:"quantity" db:"quantity"`
	Data      map[string]any `json:"attachment_data,omitempty" db:"-"`
}

// Message is a mail message between two users.
//
// A message row is never removed by either party: deletion is a per-party
// flag, and a row deleted by both parties simply stays hidden from everyone.
type Message struct {
	ID                 int64        `json:"id" db:"id"`
	SenderID           int64        `json:"sender_id" db:"sender_id"`
	RecipientID        int64        `json:"recipient_id" db:"recipient_id"`
	Subject            string       `json:"subject" db:"subject"`
	Body               string       `json:"body" db:"body"`
	IsRead             bool         `json:"is_read" db:"is_read"`
	ReadAt             *time.Time   `json:"read_at,omitempty" db:"read_at"`
	DeletedBySender    bool         `json:"is_deleted_by_sender" db:"is_deleted_by_sender"`
	DeletedByRecipient bool         `json:"is_deleted_by_recipient" db:"is_deleted_by_recipient"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	Attachments        []Attachment `json:"attachments"`
}

// IsParty reports whether userID is the sender or the recipient.
func (m *Message) IsParty(userID int64) bool {
	return userID == m.SenderID || userID == m.RecipientID
}

// DeletedBy reports whether userID has soft-deleted the message.
// Returns false for users who are not a party.
func (m *Message) DeletedBy(userID int64) bool {
	switch userID {
	case m.SenderID:
		return m.DeletedBySender
	case m.RecipientID:
		return m.DeletedByRecipient
	default:
		return false
	}
}

// AccessibleBy validates that viewerID may see the message.
//
// A viewer who is not a party gets ErrForbidden. A party who has
// soft-deleted the message gets ErrNotFound - deliberately the same error
// as a missing row, so a viewer cannot tell "deleted by me" apart from
// "never existed".
//
// All backends apply this helper after fetching the raw row so the
// visibility rule lives in exactly one place.
func (m *Message) AccessibleBy(viewerID int64) error {
	if !m.IsParty(viewerID) {
		return ErrForbidden
	}
	if m.DeletedBy(viewerID) {
		return ErrNotFound
	}
	return nil
}

// Clone returns a deep copy of the message.
// Backends that hand out shared rows (memory) return clones so callers
// can never mutate stored state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		clone.ReadAt = &t
	}
	if m.Attachments != nil {
		clone.Attachments = make([]Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			clone.Attachments[i] = *a.Clone()
		}
	}
	return &clone
}

// Clone returns a deep copy of the attachment.
func (a *Attachment) Clone() *Attachment {
	if a == nil {
		return nil
	}
	clone := *a
	if a.ItemID != nil {
		id := *a.ItemID
		clone.ItemID = &id
	}
	if a.Data != nil {
		clone.Data = make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			clone.Data[k] = v
		}
	}
	return &clone
}

// DefaultListLimit is the page size used when ListOptions.Limit is zero.
const DefaultListLimit = 50

// ListOptions controls pagination for inbox/sent listings.
type ListOptions struct {
	// Skip is the number of newest messages to skip.
	Skip int
	// Limit caps the page size. Zero means the backend default.
	Limit int
	// UnreadOnly restricts inbox listings to unread messages.
	// Ignored for sent listings.
	UnreadOnly bool
}

// MessageList is one page of a message listing.
type MessageList struct {
	Messages []*Message `json:"messages"`
	// Total is the count of all messages matching the listing, not just this page.
	Total int64 `json:"total"`
	// HasMore is true if messages exist past this page.
	HasMore bool `json:"has_more"`
}
