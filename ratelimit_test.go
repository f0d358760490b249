package gamemail

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// sendUnique sends a message with a body unique to the call so the
// duplicate check never interferes with the limit under test.
func sendUnique(ctx context.Context, mb Mailbox, recipientID int64, tag string) (*Message, error) {
	return mb.Send(ctx, SendRequest{
		RecipientID: recipientID,
		Subject:     "ping",
		Body:        "payload " + tag,
	})
}

func TestDuplicateSuppression(t *testing.T) {
	ctx := context.Background()

	svc, st, clk := newTestService(t)
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	mb := svc.Mailbox(alice)

	req := SendRequest{RecipientID: bob, Subject: "Hello", Body: "same text"}
	if _, err := mb.Send(ctx, req); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	t.Run("identical resend inside window", func(t *testing.T) {
		clk.Advance(299 * time.Second)
		if _, err := mb.Send(ctx, req); !errors.Is(err, ErrDuplicateMessage) {
			t.Errorf("expected ErrDuplicateMessage, got %v", err)
		}
	})

	t.Run("different body passes", func(t *testing.T) {
		other := req
		other.Body = "different text"
		if _, err := mb.Send(ctx, other); err != nil {
			t.Errorf("send failed: %v", err)
		}
	})

	t.Run("identical resend after window", func(t *testing.T) {
		clk.Advance(301 * time.Second)
		if _, err := mb.Send(ctx, req); err != nil {
			t.Errorf("send failed: %v", err)
		}
	})
}

func TestMinInterval(t *testing.T) {
	ctx := context.Background()

	svc, st, clk := newTestService(t)
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	mb := svc.Mailbox(alice)

	if _, err := sendUnique(ctx, mb, bob, "first"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	t.Run("too soon", func(t *testing.T) {
		clk.Advance(time.Second)
		_, err := sendUnique(ctx, mb, bob, "second")
		rle, ok := IsRateLimited(err)
		if !ok {
			t.Fatalf("expected rate limit error, got %v", err)
		}
		if rle.Kind != RateLimitInterval {
			t.Errorf("kind = %s, want %s", rle.Kind, RateLimitInterval)
		}
		if rle.RetryAfter != 2*time.Second {
			t.Errorf("retry after = %s, want 2s", rle.RetryAfter)
		}
	})

	t.Run("exactly at the interval", func(t *testing.T) {
		clk.Advance(2 * time.Second)
		if _, err := sendUnique(ctx, mb, bob, "second"); err != nil {
			t.Errorf("send failed: %v", err)
		}
	})
}

func TestClockSkew(t *testing.T) {
	// A stored timestamp ahead of the local clock must not reject the
	// send: rejecting on negative elapsed time would lock the sender
	// out until the clocks realign.
	ctx := context.Background()

	svc, st, clk := newTestService(t)
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	mb := svc.Mailbox(alice)

	// Insert history directly with a timestamp in the future.
	future := clk.Now().Add(2 * time.Second)
	st.SetClock(func() time.Time { return future })
	if _, err := st.InsertMessage(ctx, &store.Message{
		SenderID:    alice,
		RecipientID: bob,
		Subject:     "from the future",
		Body:        "skewed",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	st.SetClock(clk.Now)

	if _, err := sendUnique(ctx, mb, bob, "now"); err != nil {
		t.Errorf("send failed under clock skew: %v", err)
	}
}

func TestPerMinuteCap(t *testing.T) {
	ctx := context.Background()

	svc, st, clk := newTestService(t)
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	mb := svc.Mailbox(alice)

	// Space the sends just past the minimum interval so all ten land
	// inside one trailing minute.
	for i := 0; i < DefaultMaxPerMinute; i++ {
		if _, err := sendUnique(ctx, mb, bob, fmt.Sprintf("n%d", i)); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
		clk.Advance(3 * time.Second)
	}

	t.Run("cap reached", func(t *testing.T) {
		_, err := sendUnique(ctx, mb, bob, "over")
		rle, ok := IsRateLimited(err)
		if !ok || rle.Kind != RateLimitMinute {
			t.Fatalf("expected per-minute rejection, got %v", err)
		}
	})

	t.Run("oldest falling out of the window admits", func(t *testing.T) {
		// Enough of the early sends age past the trailing minute.
		clk.Advance(34 * time.Second)
		if _, err := sendUnique(ctx, mb, bob, "after window"); err != nil {
			t.Errorf("send failed: %v", err)
		}
	})
}

func TestPerHourCap(t *testing.T) {
	ctx := context.Background()

	svc, st, clk := newTestService(t, WithMaxPerMinute(1000))
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	mb := svc.Mailbox(alice)

	// Sends spaced so the per-minute window never holds more than a
	// handful, but the trailing hour fills to the cap.
	for i := 0; i < DefaultMaxPerHour; i++ {
		if _, err := sendUnique(ctx, mb, bob, fmt.Sprintf("n%d", i)); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
		clk.Advance(30 * time.Second)
	}

	t.Run("cap reached", func(t *testing.T) {
		_, err := sendUnique(ctx, mb, bob, "over")
		rle, ok := IsRateLimited(err)
		if !ok || rle.Kind != RateLimitHour {
			t.Fatalf("expected per-hour rejection, got %v", err)
		}
	})

	t.Run("window slides open", func(t *testing.T) {
		// Enough of the early sends age out of the trailing hour.
		clk.Advance(40 * time.Minute)
		if _, err := sendUnique(ctx, mb, bob, "later"); err != nil {
			t.Errorf("send failed: %v", err)
		}
	})
}

func TestCheckOrder(t *testing.T) {
	// An identical resend that would also trip the interval check must
	// report the duplicate: the most specific rejection wins.
	ctx := context.Background()

	svc, st, clk := newTestService(t)
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	mb := svc.Mailbox(alice)

	req := SendRequest{RecipientID: bob, Subject: "Hello", Body: "twice"}
	if _, err := mb.Send(ctx, req); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	clk.Advance(time.Second)
	_, err := mb.Send(ctx, req)
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("expected ErrDuplicateMessage, got %v", err)
	}
	if _, ok := IsRateLimited(err); ok {
		t.Error("duplicate reported as a rate limit")
	}
}
