package gamemail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// MarkRead marks a message read. Only the recipient may call it, and
// repeated calls are no-ops after the first: read_at keeps the first
// transition's timestamp.
//
// The MessageRead event is published only on the actual transition.
func (m *userMailbox) MarkRead(ctx context.Context, messageID int64) (*Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "gamemail.markread",
		attribute.Int64("message_id", messageID),
	)
	start := time.Now()
	var opErr error
	defer func() {
		endSpan(opErr)
		m.service.otel.recordMarkRead(ctx, time.Since(start), opErr)
	}()

	// The store reports whether this call flipped the flag; of any set
	// of concurrent callers exactly one sees true, so the event is
	// published once per message.
	msg, transitioned, err := m.service.store.MarkRead(ctx, messageID, m.userID)
	if err != nil {
		opErr = wrapStoreError(err)
		return nil, opErr
	}

	if transitioned && msg.ReadAt != nil {
		if err := m.service.events.MessageRead.Publish(ctx, MessageReadEvent{
			MessageID: msg.ID,
			UserID:    m.userID,
			ReadAt:    *msg.ReadAt,
		}); err != nil {
			if m.service.opts.eventErrorsFatal {
				opErr = &EventPublishError{Event: "MessageRead", MessageID: msg.ID, Err: err}
				return msg, opErr
			}
			m.service.opts.safeEventPublishFailure("MessageRead", err)
		}
	}

	return msg, nil
}

// Delete soft-deletes a message for this user only. The other party's
// view is unaffected, and the row is never removed: the sender's
// history still counts against rate limits.
func (m *userMailbox) Delete(ctx context.Context, messageID int64) error {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "gamemail.delete",
		attribute.Int64("message_id", messageID),
	)
	start := time.Now()
	var opErr error
	defer func() {
		endSpan(opErr)
		m.service.otel.recordDelete(ctx, time.Since(start), opErr)
	}()

	if err := m.service.store.SoftDelete(ctx, messageID, m.userID); err != nil {
		opErr = wrapStoreError(err)
		return opErr
	}

	if err := m.service.events.MessageDeleted.Publish(ctx, MessageDeletedEvent{
		MessageID: messageID,
		UserID:    m.userID,
		DeletedAt: m.service.opts.clock(),
	}); err != nil {
		if m.service.opts.eventErrorsFatal {
			opErr = &EventPublishError{Event: "MessageDeleted", MessageID: messageID, Err: err}
			return opErr
		}
		m.service.opts.safeEventPublishFailure("MessageDeleted", err)
	}

	return nil
}
