package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// InsertMessage persists a message and its attachments in one transaction.
func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stored := msg.Clone()
	stored.IsRead = false
	stored.ReadAt = nil
	stored.DeletedBySender = false
	stored.DeletedByRecipient = false

	insertMsg := fmt.Sprintf(`
		INSERT INTO %s (sender_id, recipient_id, subject, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, s.messagesTable)

	err = tx.QueryRowContext(ctx, insertMsg,
		stored.SenderID, stored.RecipientID, stored.Subject, stored.Body,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	insertAtt := fmt.Sprintf(`
		INSERT INTO %s (message_id, type, item_id, item_name, quantity, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, s.attachmentsTable)

	for i := range stored.Attachments {
		att := &stored.Attachments[i]
		att.MessageID = stored.ID

		data := att.Data
		if data == nil {
			data = map[string]any{}
		}
		dataJSON, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal attachment data: %w", err)
		}

		err = tx.QueryRowContext(ctx, insertAtt,
			att.MessageID, att.Type, att.ItemID, att.ItemName, att.Quantity, dataJSON,
		).Scan(&att.ID)
		if err != nil {
			return nil, fmt.Errorf("insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}

	return stored, nil
}

// MarkRead marks a message read on behalf of the recipient.
// The update is conditional on is_read so read_at is written exactly
// once, regardless of how many times the recipient calls this. The
// rows-affected count of that update is the transition signal.
func (s *Store) MarkRead(ctx context.Context, id, viewerID int64) (*store.Message, bool, error) {
	if err := s.checkConnected(); err != nil {
		return nil, false, err
	}
	if id <= 0 {
		return nil, false, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	update := fmt.Sprintf(`
		UPDATE %s
		SET is_read = TRUE, read_at = $1
		WHERE id = $2 AND recipient_id = $3
		  AND NOT deleted_by_recipient AND NOT is_read
	`, s.messagesTable)

	result, err := s.db.ExecContext(ctx, update, time.Now().UTC(), id, viewerID)
	if err != nil {
		return nil, false, fmt.Errorf("mark read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("mark read: %w", err)
	}
	transitioned := affected > 0

	// Zero rows affected can mean already read, not the recipient, or no
	// visible row. Classify by fetching the row.
	msg, err := s.getRawMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := msg.AccessibleBy(viewerID); err != nil {
		return nil, false, err
	}
	if viewerID != msg.RecipientID {
		return nil, false, store.ErrForbidden
	}

	if err := s.loadAttachments(ctx, []*store.Message{msg}); err != nil {
		return nil, false, err
	}
	return msg, transitioned, nil
}

// SoftDelete sets the viewer's deletion flag.
func (s *Store) SoftDelete(ctx context.Context, id, viewerID int64) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id <= 0 {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	msg, err := s.getRawMessage(ctx, id)
	if err != nil {
		return err
	}
	if err := msg.AccessibleBy(viewerID); err != nil {
		return err
	}

	var column string
	switch viewerID {
	case msg.SenderID:
		column = "deleted_by_sender"
	case msg.RecipientID:
		column = "deleted_by_recipient"
	}

	update := fmt.Sprintf(`UPDATE %s SET %s = TRUE WHERE id = $1`, s.messagesTable, column)
	if _, err := s.db.ExecContext(ctx, update, id); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return nil
}
