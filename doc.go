// Package gamemail provides an in-game mail service with attachment
// support and send-path rate limiting.
//
// The service wraps a pluggable store (memory, PostgreSQL, MongoDB)
// and exposes per-user mailbox clients:
//
//	st := memory.New()
//	svc, err := gamemail.NewService(gamemail.WithStore(st))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	mb := svc.Mailbox(senderID)
//	msg, err := mb.Send(ctx, gamemail.SendRequest{
//		RecipientID: recipientID,
//		Subject:     "Weekly reward",
//		Body:        "Thanks for playing!",
//	})
//
// # Rate Limiting
//
// Every send is checked against the sender's persisted message history
// before it is admitted. Four checks run in a fixed order: duplicate
// suppression, minimum send interval, per-minute cap, per-hour cap.
// The first failing check rejects the send with a typed error; see
// RateLimitError and ErrDuplicateMessage.
//
// The checks are pure queries over stored messages. No counter state
// is maintained, so the limiter is always exactly consistent with the
// message log. The check-then-insert sequence is serialized per
// sender, so concurrent sends from one sender cannot slip past the
// caps together.
//
// # Visibility
//
// Messages are soft-deleted per party. A viewer who deleted a message
// gets ErrNotFound for it, indistinguishable from a message that never
// existed. A viewer who was never a party gets ErrForbidden.
//
// # Events
//
// The service publishes MessageSent, MessageRead, and MessageDeleted
// events through github.com/rbaliyan/event. Use WithRedisClient or
// WithEventTransport to deliver them across processes; without a
// transport events are dropped.
package gamemail
