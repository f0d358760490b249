package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// getRawMessage fetches a message without applying visibility rules.
// Attachments are not loaded.
func (s *Store) getRawMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, s.messagesTable)

	var row messageRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return row.toMessage(), nil
}

// GetMessage retrieves a message, applying visibility rules for viewerID.
func (s *Store) GetMessage(ctx context.Context, id, viewerID int64) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	msg, err := s.getRawMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := msg.AccessibleBy(viewerID); err != nil {
		return nil, err
	}
	if err := s.loadAttachments(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListInbox returns received messages newest first.
func (s *Store) ListInbox(ctx context.Context, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	where := `recipient_id = $1 AND NOT deleted_by_recipient`
	if opts.UnreadOnly {
		where += ` AND NOT is_read`
	}
	return s.list(ctx, where, userID, opts)
}

// ListSent returns sent messages newest first.
func (s *Store) ListSent(ctx context.Context, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, `sender_id = $1 AND NOT deleted_by_sender`, userID, opts)
}

func (s *Store) list(ctx context.Context, where string, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if opts.Limit <= 0 {
		opts.Limit = store.DefaultListLimit
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.messagesTable, where)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, messageColumns, s.messagesTable, where)

	// Fetch one extra row to detect whether more pages follow.
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, userID, opts.Limit+1, opts.Skip); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	hasMore := len(rows) > opts.Limit
	if hasMore {
		rows = rows[:opts.Limit]
	}

	msgs := make([]*store.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toMessage())
	}
	if err := s.loadAttachments(ctx, msgs); err != nil {
		return nil, err
	}

	return &store.MessageList{
		Messages: msgs,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// CountUnread returns the unread inbox count for userID.
func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE recipient_id = $1 AND NOT deleted_by_recipient AND NOT is_read
	`, s.messagesTable)

	var n int64
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// =============================================================================
// Send History
// =============================================================================
// History queries ignore the deletion flags: a soft-deleted message is
// hidden from its deleter but still counts against the sender's limits.

// HasRecentDuplicate reports whether an identical message exists at or after since.
func (s *Store) HasRecentDuplicate(ctx context.Context, senderID, recipientID int64, subject, body string, since time.Time) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE sender_id = $1 AND recipient_id = $2
			  AND subject = $3 AND body = $4
			  AND created_at >= $5
		)
	`, s.messagesTable)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, senderID, recipientID, subject, body, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

// LastSendTime returns the sender's most recent created_at at or after since.
func (s *Store) LastSendTime(ctx context.Context, senderID int64, since time.Time) (time.Time, bool, error) {
	if err := s.checkConnected(); err != nil {
		return time.Time{}, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT created_at
		FROM %s
		WHERE sender_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, s.messagesTable)

	var last time.Time
	err := s.db.QueryRowContext(ctx, query, senderID, since).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last send time: %w", err)
	}
	return last, true, nil
}

// CountSentSince counts the sender's messages created at or after since.
func (s *Store) CountSentSince(ctx context.Context, senderID int64, since time.Time) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE sender_id = $1 AND created_at >= $2
	`, s.messagesTable)

	var n int64
	if err := s.db.QueryRowContext(ctx, query, senderID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return n, nil
}
