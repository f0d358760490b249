package gamemail

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rbaliyan/gamemail/store"
	"github.com/rbaliyan/gamemail/store/memory"
)

// recordingHook tracks lifecycle and send-path calls for assertions.
type recordingHook struct {
	name string

	mu          sync.Mutex
	inited      bool
	closed      bool
	beforeCalls int
	afterCalls  int

	initErr   error
	beforeErr error
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) Init(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initErr != nil {
		return h.initErr
	}
	h.inited = true
	return nil
}

func (h *recordingHook) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *recordingHook) BeforeSend(_ context.Context, _ int64, _ *SendRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.beforeErr != nil {
		return h.beforeErr
	}
	h.beforeCalls++
	return nil
}

func (h *recordingHook) AfterSend(_ context.Context, _ int64, _ *store.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterCalls++
	return nil
}

func TestHookLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("init and close follow the service", func(t *testing.T) {
		hook := &recordingHook{name: "audit"}
		svc, _, _ := newTestService(t, WithHook(hook))

		if !hook.inited {
			t.Error("hook not initialized on Connect")
		}
		if err := svc.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !hook.closed {
			t.Error("hook not closed on Close")
		}
	})

	t.Run("init failure rolls back earlier hooks", func(t *testing.T) {
		first := &recordingHook{name: "first"}
		second := &recordingHook{name: "second", initErr: errors.New("no backend")}

		svc, err := NewService(WithStore(memory.New()), WithHooks(first, second))
		if err != nil {
			t.Fatalf("NewService failed: %v", err)
		}

		err = svc.Connect(ctx)
		var hookErr *HookError
		if !errors.As(err, &hookErr) {
			t.Fatalf("expected *HookError, got %v", err)
		}
		if hookErr.Hook != "second" || hookErr.Op != "init" {
			t.Errorf("hook error = %+v", hookErr)
		}
		if !first.closed {
			t.Error("first hook not rolled back")
		}
		if svc.IsConnected() {
			t.Error("service connected despite hook failure")
		}
	})
}

func TestSendHooks(t *testing.T) {
	ctx := context.Background()

	t.Run("before and after run around the insert", func(t *testing.T) {
		hook := &recordingHook{name: "audit"}
		svc, st, _ := newTestService(t, WithHook(hook))
		alice := createUser(t, st, "alice")
		bob := createUser(t, st, "bob")

		if _, err := svc.Mailbox(alice).Send(ctx, SendRequest{
			RecipientID: bob, Subject: "hi", Body: "there",
		}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if hook.beforeCalls != 1 || hook.afterCalls != 1 {
			t.Errorf("calls = %d before, %d after, want 1/1", hook.beforeCalls, hook.afterCalls)
		}
	})

	t.Run("before-send rejection blocks the insert", func(t *testing.T) {
		rejection := errors.New("profanity detected")
		hook := &recordingHook{name: "filter", beforeErr: rejection}
		svc, st, _ := newTestService(t, WithHook(hook))
		alice := createUser(t, st, "alice")
		bob := createUser(t, st, "bob")

		_, err := svc.Mailbox(alice).Send(ctx, SendRequest{
			RecipientID: bob, Subject: "hi", Body: "there",
		})
		if !errors.Is(err, rejection) {
			t.Fatalf("expected hook rejection, got %v", err)
		}

		// Nothing persisted, so the recipient sees nothing.
		list, err := svc.Mailbox(bob).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox failed: %v", err)
		}
		if list.Total != 0 {
			t.Errorf("inbox total = %d, want 0", list.Total)
		}
	})

	t.Run("rejected sends never reach the hook", func(t *testing.T) {
		hook := &recordingHook{name: "audit"}
		svc, st, _ := newTestService(t, WithHook(hook))
		alice := createUser(t, st, "alice")

		if _, err := svc.Mailbox(alice).Send(ctx, SendRequest{
			RecipientID: alice, Subject: "hi", Body: "me",
		}); !errors.Is(err, ErrSelfSend) {
			t.Fatalf("expected ErrSelfSend, got %v", err)
		}
		if hook.beforeCalls != 0 {
			t.Errorf("before calls = %d, want 0", hook.beforeCalls)
		}
	})
}
