package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func createUser(t *testing.T, s *Store, username string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &store.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", username, err)
	}
	return u
}

func sendMessage(t *testing.T, s *Store, from, to int64) *store.Message {
	t.Helper()
	m, err := s.InsertMessage(context.Background(), &store.Message{
		SenderID:    from,
		RecipientID: to,
		Subject:     "hello",
		Body:        "body",
	})
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	return m
}

func TestConnect(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.GetUser(ctx, 1); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("GetUser after Close = %v, want ErrNotConnected", err)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		u := createUser(t, s, "alice")
		if u.ID == 0 {
			t.Fatal("expected assigned ID")
		}
		if u.CreatedAt.IsZero() {
			t.Error("expected CreatedAt set")
		}

		got, err := s.GetUser(ctx, u.ID)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.Username != "alice" {
			t.Errorf("Username = %q, want alice", got.Username)
		}

		byName, err := s.GetUserByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUserByUsername failed: %v", err)
		}
		if byName.ID != u.ID {
			t.Errorf("ID = %d, want %d", byName.ID, u.ID)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		createUser(t, s, "bob")
		_, err := s.CreateUser(ctx, &store.User{Username: "bob", Email: "other@example.com"})
		if !errors.Is(err, store.ErrDuplicateEntry) {
			t.Errorf("duplicate username = %v, want ErrDuplicateEntry", err)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := s.CreateUser(ctx, &store.User{Username: "bob2", Email: "bob@example.com"})
		if !errors.Is(err, store.ErrDuplicateEntry) {
			t.Errorf("duplicate email = %v, want ErrDuplicateEntry", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := s.GetUser(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetUser(9999) = %v, want ErrNotFound", err)
		}
		if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetUserByUsername(nobody) = %v, want ErrNotFound", err)
		}
	})

	t.Run("set active", func(t *testing.T) {
		u := createUser(t, s, "carol")
		if err := s.SetUserActive(ctx, u.ID, false); err != nil {
			t.Fatalf("SetUserActive failed: %v", err)
		}
		got, _ := s.GetUser(ctx, u.ID)
		if got.Active {
			t.Error("expected user inactive")
		}
		if got.UpdatedAt == nil {
			t.Error("expected UpdatedAt set")
		}
	})
}

func TestInsertMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	itemID := int64(42)
	msg, err := s.InsertMessage(ctx, &store.Message{
		SenderID:    alice.ID,
		RecipientID: bob.ID,
		Subject:     "gift",
		Body:        "enjoy",
		Attachments: []store.Attachment{
			{Type: "item", ItemID: &itemID, ItemName: "sword", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if msg.ID == 0 {
		t.Fatal("expected assigned message ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected CreatedAt set")
	}
	if msg.IsRead {
		t.Error("new message must be unread")
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("len(Attachments) = %d, want 1", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.ID == 0 || att.MessageID != msg.ID {
		t.Errorf("attachment ids not assigned: %+v", att)
	}
}

func TestGetMessageVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	carol := createUser(t, s, "carol")
	msg := sendMessage(t, s, alice.ID, bob.ID)

	t.Run("parties can read", func(t *testing.T) {
		for _, id := range []int64{alice.ID, bob.ID} {
			if _, err := s.GetMessage(ctx, msg.ID, id); err != nil {
				t.Errorf("GetMessage viewer %d failed: %v", id, err)
			}
		}
	})

	t.Run("third party forbidden", func(t *testing.T) {
		if _, err := s.GetMessage(ctx, msg.ID, carol.ID); !errors.Is(err, store.ErrForbidden) {
			t.Errorf("GetMessage third party = %v, want ErrForbidden", err)
		}
	})

	t.Run("missing is not found", func(t *testing.T) {
		if _, err := s.GetMessage(ctx, 9999, alice.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetMessage missing = %v, want ErrNotFound", err)
		}
	})

	t.Run("own deletion hides like missing", func(t *testing.T) {
		if err := s.SoftDelete(ctx, msg.ID, bob.ID); err != nil {
			t.Fatalf("SoftDelete failed: %v", err)
		}
		if _, err := s.GetMessage(ctx, msg.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetMessage own-deleted = %v, want ErrNotFound", err)
		}
		// Sender still sees it.
		if _, err := s.GetMessage(ctx, msg.ID, alice.ID); err != nil {
			t.Errorf("GetMessage other party failed: %v", err)
		}
	})
}

func TestMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	msg := sendMessage(t, s, alice.ID, bob.ID)

	t.Run("sender cannot mark read", func(t *testing.T) {
		if _, _, err := s.MarkRead(ctx, msg.ID, alice.ID); !errors.Is(err, store.ErrForbidden) {
			t.Errorf("MarkRead by sender = %v, want ErrForbidden", err)
		}
	})

	t.Run("recipient marks read once", func(t *testing.T) {
		got, transitioned, err := s.MarkRead(ctx, msg.ID, bob.ID)
		if err != nil {
			t.Fatalf("MarkRead failed: %v", err)
		}
		if !transitioned {
			t.Error("first MarkRead must report the transition")
		}
		if !got.IsRead || got.ReadAt == nil {
			t.Fatal("expected read with timestamp")
		}
		first := *got.ReadAt

		again, transitioned, err := s.MarkRead(ctx, msg.ID, bob.ID)
		if err != nil {
			t.Fatalf("second MarkRead failed: %v", err)
		}
		if transitioned {
			t.Error("repeat MarkRead must not report a transition")
		}
		if !again.ReadAt.Equal(first) {
			t.Errorf("ReadAt changed on repeat: %v != %v", again.ReadAt, first)
		}
	})

	t.Run("concurrent calls transition once", func(t *testing.T) {
		m := sendMessage(t, s, alice.ID, bob.ID)

		const callers = 10
		var wg sync.WaitGroup
		var transitions int64
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, transitioned, err := s.MarkRead(ctx, m.ID, bob.ID)
				if err != nil {
					t.Errorf("MarkRead failed: %v", err)
					return
				}
				if transitioned {
					atomic.AddInt64(&transitions, 1)
				}
			}()
		}
		wg.Wait()

		if transitions != 1 {
			t.Errorf("transitions = %d, want exactly 1", transitions)
		}
	})
}

func TestSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	t.Run("independent flags", func(t *testing.T) {
		msg := sendMessage(t, s, alice.ID, bob.ID)
		if err := s.SoftDelete(ctx, msg.ID, alice.ID); err != nil {
			t.Fatalf("sender delete failed: %v", err)
		}
		// Recipient unaffected.
		got, err := s.GetMessage(ctx, msg.ID, bob.ID)
		if err != nil {
			t.Fatalf("recipient GetMessage failed: %v", err)
		}
		if !got.DeletedBySender || got.DeletedByRecipient {
			t.Errorf("flags = sender:%v recipient:%v", got.DeletedBySender, got.DeletedByRecipient)
		}
	})

	t.Run("second delete reports not found", func(t *testing.T) {
		msg := sendMessage(t, s, alice.ID, bob.ID)
		if err := s.SoftDelete(ctx, msg.ID, bob.ID); err != nil {
			t.Fatalf("first delete failed: %v", err)
		}
		if err := s.SoftDelete(ctx, msg.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second delete = %v, want ErrNotFound", err)
		}
	})
}

func TestListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	for i := 0; i < 5; i++ {
		m, err := s.InsertMessage(ctx, &store.Message{
			SenderID:    alice.ID,
			RecipientID: bob.ID,
			Subject:     fmt.Sprintf("msg-%d", i),
			Body:        "body",
		})
		if err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
		if i == 0 {
			if _, _, err := s.MarkRead(ctx, m.ID, bob.ID); err != nil {
				t.Fatalf("MarkRead failed: %v", err)
			}
		}
	}

	t.Run("inbox newest first", func(t *testing.T) {
		list, err := s.ListInbox(ctx, bob.ID, store.ListOptions{})
		if err != nil {
			t.Fatalf("ListInbox failed: %v", err)
		}
		if list.Total != 5 || len(list.Messages) != 5 {
			t.Fatalf("Total = %d, len = %d, want 5", list.Total, len(list.Messages))
		}
		if list.Messages[0].Subject != "msg-4" {
			t.Errorf("first subject = %q, want msg-4", list.Messages[0].Subject)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		list, err := s.ListInbox(ctx, bob.ID, store.ListOptions{Skip: 2, Limit: 2})
		if err != nil {
			t.Fatalf("ListInbox failed: %v", err)
		}
		if len(list.Messages) != 2 {
			t.Fatalf("len = %d, want 2", len(list.Messages))
		}
		if !list.HasMore {
			t.Error("expected HasMore")
		}
		if list.Messages[0].Subject != "msg-2" {
			t.Errorf("first subject = %q, want msg-2", list.Messages[0].Subject)
		}
	})

	t.Run("unread only", func(t *testing.T) {
		list, err := s.ListInbox(ctx, bob.ID, store.ListOptions{UnreadOnly: true})
		if err != nil {
			t.Fatalf("ListInbox failed: %v", err)
		}
		if list.Total != 4 {
			t.Errorf("Total = %d, want 4", list.Total)
		}
	})

	t.Run("sent excludes sender deleted", func(t *testing.T) {
		list, err := s.ListSent(ctx, alice.ID, store.ListOptions{})
		if err != nil {
			t.Fatalf("ListSent failed: %v", err)
		}
		if list.Total != 5 {
			t.Fatalf("Total = %d, want 5", list.Total)
		}
		if err := s.SoftDelete(ctx, list.Messages[0].ID, alice.ID); err != nil {
			t.Fatalf("SoftDelete failed: %v", err)
		}
		list, err = s.ListSent(ctx, alice.ID, store.ListOptions{})
		if err != nil {
			t.Fatalf("ListSent failed: %v", err)
		}
		if list.Total != 4 {
			t.Errorf("Total after delete = %d, want 4", list.Total)
		}
	})

	t.Run("unread count", func(t *testing.T) {
		n, err := s.CountUnread(ctx, bob.ID)
		if err != nil {
			t.Fatalf("CountUnread failed: %v", err)
		}
		if n != 4 {
			t.Errorf("CountUnread = %d, want 4", n)
		}
	})
}

// TestListDuringMutation runs listing concurrently with reads-marking
// and deletes on the same messages. Run with -race: the lists must
// return clones taken under the lock, never live pointers into the
// store.
func TestListDuringMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	msgs := make([]*store.Message, 20)
	for i := range msgs {
		msgs[i] = sendMessage(t, s, alice.ID, bob.ID)
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := s.ListInbox(ctx, bob.ID, store.ListOptions{}); err != nil {
				t.Errorf("ListInbox failed: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for _, m := range msgs {
			if _, _, err := s.MarkRead(ctx, m.ID, bob.ID); err != nil {
				t.Errorf("MarkRead failed: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for _, m := range msgs[:10] {
			if err := s.SoftDelete(ctx, m.ID, alice.ID); err != nil {
				t.Errorf("SoftDelete failed: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}

func TestSendHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	s.SetClock(func() time.Time { return current })

	insert := func(at time.Time, subject string) {
		t.Helper()
		current = at
		_, err := s.InsertMessage(ctx, &store.Message{
			SenderID:    alice.ID,
			RecipientID: bob.ID,
			Subject:     subject,
			Body:        "body",
		})
		if err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	insert(base, "first")
	insert(base.Add(10*time.Second), "second")
	insert(base.Add(20*time.Second), "third")

	t.Run("duplicate detection", func(t *testing.T) {
		dup, err := s.HasRecentDuplicate(ctx, alice.ID, bob.ID, "second", "body", base)
		if err != nil {
			t.Fatalf("HasRecentDuplicate failed: %v", err)
		}
		if !dup {
			t.Error("expected duplicate found")
		}

		// Outside the window.
		dup, err = s.HasRecentDuplicate(ctx, alice.ID, bob.ID, "first", "body", base.Add(5*time.Second))
		if err != nil {
			t.Fatalf("HasRecentDuplicate failed: %v", err)
		}
		if dup {
			t.Error("expected no duplicate outside window")
		}

		// Different body is not a duplicate.
		dup, _ = s.HasRecentDuplicate(ctx, alice.ID, bob.ID, "second", "other", base)
		if dup {
			t.Error("different body must not match")
		}
	})

	t.Run("last send time", func(t *testing.T) {
		last, found, err := s.LastSendTime(ctx, alice.ID, base)
		if err != nil {
			t.Fatalf("LastSendTime failed: %v", err)
		}
		if !found || !last.Equal(base.Add(20*time.Second)) {
			t.Errorf("last = %v found = %v", last, found)
		}

		_, found, err = s.LastSendTime(ctx, alice.ID, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("LastSendTime failed: %v", err)
		}
		if found {
			t.Error("expected none after window")
		}
	})

	t.Run("count sent since", func(t *testing.T) {
		n, err := s.CountSentSince(ctx, alice.ID, base.Add(5*time.Second))
		if err != nil {
			t.Fatalf("CountSentSince failed: %v", err)
		}
		if n != 2 {
			t.Errorf("CountSentSince = %d, want 2", n)
		}
	})

	t.Run("history survives soft delete", func(t *testing.T) {
		list, err := s.ListSent(ctx, alice.ID, store.ListOptions{})
		if err != nil {
			t.Fatalf("ListSent failed: %v", err)
		}
		for _, m := range list.Messages {
			if err := s.SoftDelete(ctx, m.ID, alice.ID); err != nil {
				t.Fatalf("SoftDelete failed: %v", err)
			}
		}
		n, err := s.CountSentSince(ctx, alice.ID, base)
		if err != nil {
			t.Fatalf("CountSentSince failed: %v", err)
		}
		if n != 3 {
			t.Errorf("CountSentSince after delete = %d, want 3", n)
		}
	})
}
