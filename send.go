package gamemail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rbaliyan/gamemail/store"
)

// Send validates the recipient, runs the rate-limit checks, and
// persists the message with its attachments as one unit.
//
// Rejections are typed: ErrNotFound (unknown recipient),
// ErrInactiveRecipient, ErrSelfSend, ErrDuplicateMessage, and
// *RateLimitError for the time-based caps. Anything else is a
// storage failure.
func (m *userMailbox) Send(ctx context.Context, req SendRequest) (*Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if err := validateSendRequest(&req, m.service.opts.msgLimits); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "gamemail.send",
		attribute.Int64("sender_id", m.userID),
		attribute.Int64("recipient_id", req.RecipientID),
		attribute.Int("attachment_count", len(req.Attachments)),
	)
	start := time.Now()
	var sendErr error
	defer func() {
		endSpan(sendErr)
		m.service.otel.recordSend(ctx, time.Since(start), len(req.Attachments), sendErr)
	}()

	if err := m.service.sendSem.Acquire(ctx, 1); err != nil {
		sendErr = err
		return nil, sendErr
	}
	defer m.service.sendSem.Release(1)

	// Recipient validation: unknown, inactive, then self-send.
	recipient, err := m.service.store.GetUser(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErr = fmt.Errorf("recipient %d: %w", req.RecipientID, ErrNotFound)
		} else {
			sendErr = fmt.Errorf("load recipient: %w", err)
		}
		return nil, sendErr
	}
	if !recipient.Active {
		sendErr = ErrInactiveRecipient
		return nil, sendErr
	}
	if req.RecipientID == m.userID {
		sendErr = ErrSelfSend
		return nil, sendErr
	}

	// The rate checks read the sender's history and the insert appends
	// to it. Holding the sender's lock across both keeps concurrent
	// sends from the same sender from passing against the same
	// pre-insert snapshot.
	lock := m.service.senderLock(m.userID)
	lock.Lock()
	msg, err := m.admitAndInsert(ctx, &req)
	lock.Unlock()
	if err != nil {
		sendErr = err
		return nil, sendErr
	}

	if err := m.service.events.MessageSent.Publish(ctx, MessageSentEvent{
		MessageID:       msg.ID,
		SenderID:        msg.SenderID,
		RecipientID:     msg.RecipientID,
		Subject:         msg.Subject,
		AttachmentCount: len(msg.Attachments),
		SentAt:          msg.CreatedAt,
	}); err != nil {
		if m.service.opts.eventErrorsFatal {
			sendErr = &EventPublishError{Event: "MessageSent", MessageID: msg.ID, Err: err}
			// The message is persisted; return it alongside the error.
			return msg, sendErr
		}
		m.service.opts.safeEventPublishFailure("MessageSent", err)
	}

	if err := m.service.hooks.afterSend(ctx, m.userID, msg); err != nil {
		sendErr = err
		return msg, sendErr
	}

	return msg, nil
}

// admitAndInsert runs the rate checks and persists the message.
// Caller holds the sender's send lock.
func (m *userMailbox) admitAndInsert(ctx context.Context, req *SendRequest) (*Message, error) {
	if err := m.service.limiter.check(ctx, m.userID, req.RecipientID, req.Subject, req.Body); err != nil {
		return nil, err
	}

	if err := m.service.hooks.beforeSend(ctx, m.userID, req); err != nil {
		return nil, err
	}

	msg, err := m.service.store.InsertMessage(ctx, &store.Message{
		SenderID:    m.userID,
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: req.Attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}
