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

// getRawMessage fetches a message without applying visibility rules.
func (s *Store) getRawMessage(ctx context.Context, id int64) (*store.Message, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return doc.toMessage(), nil
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
	return msg, nil
}

// ListInbox returns received messages newest first.
func (s *Store) ListInbox(ctx context.Context, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	filter := bson.M{
		"recipient_id":         userID,
		"deleted_by_recipient": false,
	}
	if opts.UnreadOnly {
		filter["is_read"] = false
	}
	return s.list(ctx, filter, opts)
}

// ListSent returns sent messages newest first.
func (s *Store) ListSent(ctx context.Context, userID int64, opts store.ListOptions) (*store.MessageList, error) {
	return s.list(ctx, bson.M{
		"sender_id":         userID,
		"deleted_by_sender": false,
	}, opts)
}

func (s *Store) list(ctx context.Context, filter bson.M, opts store.ListOptions) (*store.MessageList, error) {
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

	total, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	// Fetch one extra document to detect whether more pages follow.
	findOpts := mongoopts.Find().
		SetSort(bson.D{
			bson.E{Key: "created_at", Value: -1},
			bson.E{Key: "_id", Value: -1},
		}).
		SetSkip(int64(opts.Skip)).
		SetLimit(int64(opts.Limit + 1))

	cursor, err := s.messages.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	hasMore := len(docs) > opts.Limit
	if hasMore {
		docs = docs[:opts.Limit]
	}

	msgs := make([]*store.Message, 0, len(docs))
	for i := range docs {
		msgs = append(msgs, docs[i].toMessage())
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

	n, err := s.messages.CountDocuments(ctx, bson.M{
		"recipient_id":         userID,
		"deleted_by_recipient": false,
		"is_read":              false,
	})
	if err != nil {
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

	err := s.messages.FindOne(ctx, bson.M{
		"sender_id":    senderID,
		"recipient_id": recipientID,
		"subject":      subject,
		"body":         body,
		"created_at":   bson.M{"$gte": since},
	}, mongoopts.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return true, nil
}

// LastSendTime returns the sender's most recent created_at at or after since.
func (s *Store) LastSendTime(ctx context.Context, senderID int64, since time.Time) (time.Time, bool, error) {
	if err := s.checkConnected(); err != nil {
		return time.Time{}, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	err := s.messages.FindOne(ctx,
		bson.M{
			"sender_id":  senderID,
			"created_at": bson.M{"$gte": since},
		},
		mongoopts.FindOne().
			SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).
			SetProjection(bson.M{"created_at": 1}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last send time: %w", err)
	}
	return doc.CreatedAt, true, nil
}

// CountSentSince counts the sender's messages created at or after since.
func (s *Store) CountSentSince(ctx context.Context, senderID int64, since time.Time) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.messages.CountDocuments(ctx, bson.M{
		"sender_id":  senderID,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return n, nil
}
