// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	mu        sync.RWMutex
	users     map[int64]*store.User
	usernames map[string]int64
	emails    map[string]int64
	messages  map[int64]*store.Message
	// bySender keeps insertion order per sender for history scans.
	bySender map[int64][]int64

	nextUserID       int64
	nextMessageID    int64
	nextAttachmentID int64

	connected int32

	// now is swappable in tests.
	now func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:     make(map[int64]*store.User),
		usernames: make(map[string]int64),
		emails:    make(map[string]int64),
		messages:  make(map[int64]*store.Message),
		bySender:  make(map[int64][]int64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock. Test use only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// =============================================================================
// User Operations
// =============================================================================

// CreateUser persists a new user, assigning ID and CreatedAt.
func (s *Store) CreateUser(ctx context.Context, user *store.User) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[user.Username]; taken {
		return nil, store.ErrDuplicateEntry
	}
	if _, taken := s.emails[user.Email]; taken {
		return nil, store.ErrDuplicateEntry
	}

	s.nextUserID++
	u := *user
	u.ID = s.nextUserID
	u.CreatedAt = s.now()

	s.users[u.ID] = &u
	s.usernames[u.Username] = u.ID
	s.emails[u.Email] = u.ID

	clone := u
	return &clone, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// SetUserActive flips the active flag.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Active = active
	now := s.now()
	u.UpdatedAt = &now
	return nil
}

// =============================================================================
// Message Operations
// =============================================================================

// InsertMessage persists a message and its attachments as one unit.
func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := msg.Clone()
	s.nextMessageID++
	stored.ID = s.nextMessageID
	stored.CreatedAt = s.now()
	stored.IsRead = false
	stored.ReadAt = nil
	stored.DeletedBySender = false
	stored.DeletedByRecipient = false
	for i := range stored.Attachments {
		s.nextAttachmentID++
		stored.Attachments[i].ID = s.nextAttachmentID
		stored.Attachments[i].MessageID = stored.ID
	}

	s.messages[stored.ID] = stored
	s.bySender[stored.SenderID] = append(s.bySender[stored.SenderID], stored.ID)

	return stored.Clone(), nil
}

// GetMessage retrieves a message, applying visibility rules for viewerID.
func (s *Store) GetMessage(ctx context.Context, id, viewerID int64) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := m.AccessibleBy(viewerID); err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// ListInbox returns received messages newest first.
func (s *Store) ListInbox(ctx context.Context, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, func(m *store.Message) bool {
		if m.RecipientID != userID || m.DeletedByRecipient {
			return false
		}
		if opts.UnreadOnly && m.IsRead {
			return false
		}
		return true
	}, opts)
}

// ListSent returns sent messages newest first.
func (s *Store) ListSent(ctx context.Context, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, func(m *store.Message) bool {
		return m.SenderID == userID && !m.DeletedBySender
	}, opts)
}

func (s *Store) list(ctx context.Context, match func(*store.Message) bool, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	// Clone while the lock is held: MarkRead and SoftDelete mutate the
	// stored structs under the write lock.
	s.mu.RLock()
	var all []*store.Message
	for _, m := range s.messages {
		if match(m) {
			all = append(all, m.Clone())
		}
	}
	s.mu.RUnlock()

	// Newest first; ties broken by ID so pagination is stable.
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	start := opts.Skip
	if start < 0 {
		start = 0
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]*store.Message, 0, end-start)
	page = append(page, all[start:end]...)

	return &store.MessageList{
		Messages: page,
		Total:    total,
		HasMore:  end < len(all),
	}, nil
}

// MarkRead marks a message read on behalf of the recipient.
// Idempotent: read_at is only written on the unread-to-read transition.
func (s *Store) MarkRead(ctx context.Context, id, viewerID int64) (*store.Message, bool, error) {
	if err := s.checkConnected(); err != nil {
		return nil, false, err
	}
	if id <= 0 {
		return nil, false, store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if err := m.AccessibleBy(viewerID); err != nil {
		return nil, false, err
	}
	if viewerID != m.RecipientID {
		return nil, false, store.ErrForbidden
	}

	transitioned := !m.IsRead
	if transitioned {
		now := s.now()
		m.IsRead = true
		m.ReadAt = &now
	}
	return m.Clone(), transitioned, nil
}

// SoftDelete sets the viewer's deletion flag.
func (s *Store) SoftDelete(ctx context.Context, id, viewerID int64) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id <= 0 {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := m.AccessibleBy(viewerID); err != nil {
		return err
	}

	switch viewerID {
	case m.SenderID:
		m.DeletedBySender = true
	case m.RecipientID:
		m.DeletedByRecipient = true
	}
	return nil
}

// CountUnread returns the unread inbox count for userID.
func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if m.RecipientID == userID && !m.DeletedByRecipient && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Send History
// =============================================================================

// HasRecentDuplicate reports whether an identical message exists at or after since.
func (s *Store) HasRecentDuplicate(ctx context.Context, senderID, recipientID int64, subject, body string, since time.Time) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.bySender[senderID] {
		m := s.messages[id]
		if m.CreatedAt.Before(since) {
			continue
		}
		if m.RecipientID == recipientID && m.Subject == subject && m.Body == body {
			return true, nil
		}
	}
	return false, nil
}

// LastSendTime returns the sender's most recent created_at at or after since.
func (s *Store) LastSendTime(ctx context.Context, senderID int64, since time.Time) (time.Time, bool, error) {
	if err := s.checkConnected(); err != nil {
		return time.Time{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	var found bool
	for _, id := range s.bySender[senderID] {
		m := s.messages[id]
		if m.CreatedAt.Before(since) {
			continue
		}
		if !found || m.CreatedAt.After(last) {
			last = m.CreatedAt
			found = true
		}
	}
	return last, found, nil
}

// CountSentSince counts the sender's messages created at or after since.
func (s *Store) CountSentSince(ctx context.Context, senderID int64, since time.Time) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, id := range s.bySender[senderID] {
		if !s.messages[id].CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
