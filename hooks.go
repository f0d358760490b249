package gamemail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rbaliyan/gamemail/store"
)

// Hook defines the interface for service extensions.
// Hooks can intercept the send path to add custom behavior such as
// profanity filtering, attachment grant validation, or audit logging.
//
// For observing other operations (read, delete), use the event system
// instead (Service.Events()).
type Hook interface {
	// Name returns the hook identifier.
	Name() string
	// Init initializes the hook. Called when the service connects.
	Init(ctx context.Context) error
	// Close cleans up hook resources. Called when the service closes.
	Close(ctx context.Context) error
}

// SendHook is called before/after sending messages.
// This is the primary extension point for send validation and filtering.
type SendHook interface {
	Hook
	// BeforeSend is called after rate-limit admission but before the
	// message is persisted. Return an error to abort the send.
	BeforeSend(ctx context.Context, senderID int64, req *SendRequest) error
	// AfterSend is called after a message is successfully persisted.
	// The message cannot be rolled back at this point.
	AfterSend(ctx context.Context, senderID int64, msg *store.Message) error
}

// hookRegistry holds registered hooks.
type hookRegistry struct {
	all    []Hook
	send   []SendHook
	logger *slog.Logger
}

func newHookRegistry(logger *slog.Logger) *hookRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &hookRegistry{logger: logger}
}

func (r *hookRegistry) register(h Hook) {
	r.all = append(r.all, h)

	if sh, ok := h.(SendHook); ok {
		r.send = append(r.send, sh)
	}
}

// initAll initializes all hooks.
// On failure, already-initialized hooks are closed in reverse order.
func (r *hookRegistry) initAll(ctx context.Context) error {
	for i, h := range r.all {
		if err := h.Init(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if closeErr := r.all[j].Close(ctx); closeErr != nil {
					r.logger.Error("failed to close hook during init rollback",
						"hook", r.all[j].Name(), "error", closeErr)
				}
			}
			return &HookError{Hook: h.Name(), Op: "init", Err: err}
		}
	}
	return nil
}

// closeAll closes all hooks in reverse order.
func (r *hookRegistry) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(r.all) - 1; i >= 0; i-- {
		if err := r.all[i].Close(ctx); err != nil {
			errs = append(errs, &HookError{Hook: r.all[i].Name(), Op: "close", Err: err})
		}
	}
	return errors.Join(errs...)
}

// HookError represents an error from a hook.
type HookError struct {
	Hook string
	Op   string
	Err  error
}

func (e *HookError) Error() string {
	return "hook " + e.Hook + " " + e.Op + ": " + e.Err.Error()
}

func (e *HookError) Unwrap() error {
	return e.Err
}

func (r *hookRegistry) beforeSend(ctx context.Context, senderID int64, req *SendRequest) error {
	for _, h := range r.send {
		if err := h.BeforeSend(ctx, senderID, req); err != nil {
			return &HookError{Hook: h.Name(), Op: "BeforeSend", Err: err}
		}
	}
	return nil
}

func (r *hookRegistry) afterSend(ctx context.Context, senderID int64, msg *store.Message) error {
	for _, h := range r.send {
		if err := h.AfterSend(ctx, senderID, msg); err != nil {
			return &HookError{Hook: h.Name(), Op: "AfterSend", Err: err}
		}
	}
	return nil
}
