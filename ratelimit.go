package gamemail

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// rateLimiter decides whether a send is admitted, purely by querying
// the sender's persisted message history. No counter state is kept:
// every decision is exactly consistent with the stored log, and a
// service restart loses nothing.
//
// The four checks run in a fixed order so the most specific rejection
// wins: an identical resend reports "duplicate" rather than tripping
// a generic cap.
type rateLimiter struct {
	history store.SendHistory
	limits  RateLimits
	now     func() time.Time
}

func newRateLimiter(history store.SendHistory, limits RateLimits, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		history: history,
		limits:  limits,
		now:     now,
	}
}

// check evaluates the four admission checks against the sender's
// history. It returns nil to admit, ErrDuplicateMessage or a
// *RateLimitError to reject, or a wrapped storage error.
//
// The message under evaluation is not yet persisted, so it never
// counts against itself. The caller must hold the sender's send lock
// across check and insert; otherwise two concurrent sends can both
// pass against the same pre-insert snapshot.
func (r *rateLimiter) check(ctx context.Context, senderID, recipientID int64, subject, body string) error {
	now := r.now()

	// 1. Duplicate suppression.
	dup, err := r.history.HasRecentDuplicate(ctx, senderID, recipientID, subject, body,
		now.Add(-r.limits.DuplicateWindow))
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		return ErrDuplicateMessage
	}

	// 2. Minimum interval.
	last, found, err := r.history.LastSendTime(ctx, senderID, now.Add(-r.limits.MinInterval))
	if err != nil {
		return fmt.Errorf("check interval: %w", err)
	}
	if found {
		elapsed := now.Sub(last)
		// A negative elapsed time means clock skew between this node
		// and the stored timestamp; do not reject on it.
		if elapsed >= 0 && elapsed < r.limits.MinInterval {
			return &RateLimitError{
				Kind:       RateLimitInterval,
				RetryAfter: r.limits.MinInterval - elapsed,
			}
		}
	}

	// 3. Per-minute cap.
	count, err := r.history.CountSentSince(ctx, senderID, now.Add(-time.Minute))
	if err != nil {
		return fmt.Errorf("check per-minute: %w", err)
	}
	if count >= int64(r.limits.MaxPerMinute) {
		return &RateLimitError{Kind: RateLimitMinute}
	}

	// 4. Per-hour cap.
	count, err = r.history.CountSentSince(ctx, senderID, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("check per-hour: %w", err)
	}
	if count >= int64(r.limits.MaxPerHour) {
		return &RateLimitError{Kind: RateLimitHour}
	}

	return nil
}
