package gamemail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Get retrieves a single message visible to this user.
// Returns ErrForbidden if the user is not a party, and ErrNotFound if
// the message does not exist or the user soft-deleted it.
func (m *userMailbox) Get(ctx context.Context, messageID int64) (*Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "gamemail.get",
		attribute.Int64("message_id", messageID),
	)
	start := time.Now()
	msg, err := m.service.store.GetMessage(ctx, messageID, m.userID)
	err = wrapStoreError(err)
	endSpan(err)
	m.service.otel.recordGet(ctx, time.Since(start), err)
	return msg, err
}

// Inbox lists received messages, newest first.
func (m *userMailbox) Inbox(ctx context.Context, opts ListOptions) (*MessageList, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "gamemail.inbox",
		attribute.Int64("user_id", m.userID),
	)
	start := time.Now()
	list, err := m.service.store.ListInbox(ctx, m.userID, opts)
	err = wrapStoreError(err)
	endSpan(err)

	count := 0
	if list != nil {
		count = len(list.Messages)
	}
	m.service.otel.recordList(ctx, time.Since(start), "inbox", count, err)
	return list, err
}

// Sent lists sent messages, newest first.
func (m *userMailbox) Sent(ctx context.Context, opts ListOptions) (*MessageList, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "gamemail.sent",
		attribute.Int64("user_id", m.userID),
	)
	start := time.Now()
	list, err := m.service.store.ListSent(ctx, m.userID, opts)
	err = wrapStoreError(err)
	endSpan(err)

	count := 0
	if list != nil {
		count = len(list.Messages)
	}
	m.service.otel.recordList(ctx, time.Since(start), "sent", count, err)
	return list, err
}

// UnreadCount returns the number of unread inbox messages.
func (m *userMailbox) UnreadCount(ctx context.Context) (int64, error) {
	if err := m.checkAccess(); err != nil {
		return 0, err
	}
	n, err := m.service.store.CountUnread(ctx, m.userID)
	return n, wrapStoreError(err)
}
