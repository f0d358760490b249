package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rbaliyan/gamemail/store"
)

// messageRow mirrors the messages table.
type messageRow struct {
	ID                 int64      `db:"id"`
	SenderID           int64      `db:"sender_id"`
	RecipientID        int64      `db:"recipient_id"`
	Subject            string     `db:"subject"`
	Body               string     `db:"body"`
	IsRead             bool       `db:"is_read"`
	ReadAt             *time.Time `db:"read_at"`
	DeletedBySender    bool       `db:"deleted_by_sender"`
	DeletedByRecipient bool       `db:"deleted_by_recipient"`
	CreatedAt          time.Time  `db:"created_at"`
}

// attachmentRow mirrors the attachments table. Data is raw JSONB.
type attachmentRow struct {
	ID        int64   `db:"id"`
	MessageID int64   `db:"message_id"`
	Type      string  `db:"type"`
	ItemID    *int64  `db:"item_id"`
	ItemName  string  `db:"item_name"`
	Quantity  float64 `db:"quantity"`
	Data      []byte  `db:"data"`
}

func (r *messageRow) toMessage() *store.Message {
	return &store.Message{
		ID:                 r.ID,
		SenderID:           r.SenderID,
		RecipientID:        r.RecipientID,
		Subject:            r.Subject,
		Body:               r.Body,
		IsRead:             r.IsRead,
		ReadAt:             r.ReadAt,
		DeletedBySender:    r.DeletedBySender,
		DeletedByRecipient: r.DeletedByRecipient,
		CreatedAt:          r.CreatedAt,
	}
}

func (r *attachmentRow) toAttachment() (store.Attachment, error) {
	att := store.Attachment{
		ID:        r.ID,
		MessageID: r.MessageID,
		Type:      r.Type,
		ItemID:    r.ItemID,
		ItemName:  r.ItemName,
		Quantity:  r.Quantity,
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &att.Data); err != nil {
			return att, fmt.Errorf("unmarshal attachment data: %w", err)
		}
	}
	return att, nil
}

const messageColumns = `id, sender_id, recipient_id, subject, body, is_read, read_at,
       deleted_by_sender, deleted_by_recipient, created_at`

const attachmentColumns = `id, message_id, type, item_id, item_name, quantity, data`

// loadAttachments fetches attachments for a set of messages and
// attaches them in place.
func (s *Store) loadAttachments(ctx context.Context, msgs []*store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(msgs))
	byID := make(map[int64]*store.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE message_id = ANY($1)
		ORDER BY id
	`, attachmentColumns, s.attachmentsTable)

	var rows []attachmentRow
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}

	for i := range rows {
		att, err := rows[i].toAttachment()
		if err != nil {
			return err
		}
		if m, ok := byID[att.MessageID]; ok {
			m.Attachments = append(m.Attachments, att)
		}
	}
	return nil
}
