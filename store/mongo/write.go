package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rbaliyan/gamemail/store"
)

// InsertMessage persists a message with its attachments embedded.
// A single InsertOne keeps message and attachments atomic.
func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	id, err := s.nextID(ctx, "messages")
	if err != nil {
		return nil, err
	}

	stored := msg.Clone()
	stored.ID = id
	stored.CreatedAt = time.Now().UTC()
	stored.IsRead = false
	stored.ReadAt = nil
	stored.DeletedBySender = false
	stored.DeletedByRecipient = false
	for i := range stored.Attachments {
		attID, err := s.nextID(ctx, "attachments")
		if err != nil {
			return nil, err
		}
		stored.Attachments[i].ID = attID
		stored.Attachments[i].MessageID = stored.ID
	}

	if _, err := s.messages.InsertOne(ctx, toMessageDoc(stored)); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

// MarkRead marks a message read on behalf of the recipient.
// The filter includes is_read so read_at is written exactly once; a
// matched document means this call performed the transition.
func (s *Store) MarkRead(ctx context.Context, id, viewerID int64) (*store.Message, bool, error) {
	if err := s.checkConnected(); err != nil {
		return nil, false, err
	}
	if id <= 0 {
		return nil, false, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc messageDoc
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{
			"_id":                  id,
			"recipient_id":         viewerID,
			"deleted_by_recipient": false,
			"is_read":              false,
		},
		bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now().UTC()}},
		mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After),
	).Decode(&doc)
	if err == nil {
		return doc.toMessage(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("mark read: %w", err)
	}

	// No transition happened: already read, not the recipient, or no
	// visible row. Classify by fetching the document.
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
	return msg, false, nil
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

	field := "deleted_by_sender"
	if viewerID == msg.RecipientID {
		field = "deleted_by_recipient"
	}

	if _, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: true}},
	); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return nil
}
