package mongo

import (
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// messageDoc is the persisted form of a message. Attachments are
// embedded so a send is a single-document insert.
type messageDoc struct {
	ID                 int64           `bson:"_id"`
	SenderID           int64           `bson:"sender_id"`
	RecipientID        int64           `bson:"recipient_id"`
	Subject            string          `bson:"subject"`
	Body               string          `bson:"body"`
	IsRead             bool            `bson:"is_read"`
	ReadAt             *time.Time      `bson:"read_at,omitempty"`
	DeletedBySender    bool            `bson:"deleted_by_sender"`
	DeletedByRecipient bool            `bson:"deleted_by_recipient"`
	CreatedAt          time.Time       `bson:"created_at"`
	Attachments        []attachmentDoc `bson:"attachments,omitempty"`
}

type attachmentDoc struct {
	ID       int64          `bson:"id"`
	Type     string         `bson:"type"`
	ItemID   *int64         `bson:"item_id,omitempty"`
	ItemName string         `bson:"item_name,omitempty"`
	Quantity float64        `bson:"quantity"`
	Data     map[string]any `bson:"data,omitempty"`
}

type userDoc struct {
	ID           int64      `bson:"_id"`
	Username     string     `bson:"username"`
	Email        string     `bson:"email"`
	PasswordHash string     `bson:"password_hash"`
	Active       bool       `bson:"active"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    *time.Time `bson:"updated_at,omitempty"`
}

func toMessageDoc(m *store.Message) *messageDoc {
	doc := &messageDoc{
		ID:                 m.ID,
		SenderID:           m.SenderID,
		RecipientID:        m.RecipientID,
		Subject:            m.Subject,
		Body:               m.Body,
		IsRead:             m.IsRead,
		ReadAt:             m.ReadAt,
		DeletedBySender:    m.DeletedBySender,
		DeletedByRecipient: m.DeletedByRecipient,
		CreatedAt:          m.CreatedAt,
	}
	for _, a := range m.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDoc{
			ID:       a.ID,
			Type:     a.Type,
			ItemID:   a.ItemID,
			ItemName: a.ItemName,
			Quantity: a.Quantity,
			Data:     a.Data,
		})
	}
	return doc
}

func (d *messageDoc) toMessage() *store.Message {
	m := &store.Message{
		ID:                 d.ID,
		SenderID:           d.SenderID,
		RecipientID:        d.RecipientID,
		Subject:            d.Subject,
		Body:               d.Body,
		IsRead:             d.IsRead,
		ReadAt:             d.ReadAt,
		DeletedBySender:    d.DeletedBySender,
		DeletedByRecipient: d.DeletedByRecipient,
		CreatedAt:          d.CreatedAt,
	}
	for _, a := range d.Attachments {
		m.Attachments = append(m.Attachments, store.Attachment{
			ID:        a.ID,
			MessageID: d.ID,
			Type:      a.Type,
			ItemID:    a.ItemID,
			ItemName:  a.ItemName,
			Quantity:  a.Quantity,
			Data:      a.Data,
		})
	}
	return m
}

func toUserDoc(u *store.User) *userDoc {
	return &userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d *userDoc) toUser() *store.User {
	return &store.User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
