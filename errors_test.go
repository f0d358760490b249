package gamemail

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

func TestErrorWrapping(t *testing.T) {
	t.Run("service errors match store sentinels", func(t *testing.T) {
		if !errors.Is(ErrNotFound, store.ErrNotFound) {
			t.Error("ErrNotFound does not wrap store.ErrNotFound")
		}
		if !errors.Is(ErrForbidden, store.ErrForbidden) {
			t.Error("ErrForbidden does not wrap store.ErrForbidden")
		}
		if !errors.Is(ErrNotConnected, store.ErrNotConnected) {
			t.Error("ErrNotConnected does not wrap store.ErrNotConnected")
		}
	})

	t.Run("wrapped errors still match", func(t *testing.T) {
		err := fmt.Errorf("recipient 7: %w", ErrNotFound)
		if !errors.Is(err, ErrNotFound) || !errors.Is(err, store.ErrNotFound) {
			t.Errorf("wrapping broke sentinel matching: %v", err)
		}
	})
}

func TestRateLimitError(t *testing.T) {
	t.Run("unwraps to ErrRateLimited", func(t *testing.T) {
		err := &RateLimitError{Kind: RateLimitMinute}
		if !errors.Is(err, ErrRateLimited) {
			t.Error("RateLimitError does not unwrap to ErrRateLimited")
		}
	})

	t.Run("IsRateLimited extracts details", func(t *testing.T) {
		var err error = &RateLimitError{Kind: RateLimitInterval, RetryAfter: 2 * time.Second}
		rle, ok := IsRateLimited(fmt.Errorf("send: %w", err))
		if !ok {
			t.Fatal("IsRateLimited = false")
		}
		if rle.Kind != RateLimitInterval || rle.RetryAfter != 2*time.Second {
			t.Errorf("details = %+v", rle)
		}
	})

	t.Run("IsRateLimited rejects other errors", func(t *testing.T) {
		if _, ok := IsRateLimited(ErrDuplicateMessage); ok {
			t.Error("duplicate reported as rate limited")
		}
	})

	t.Run("message includes retry guidance", func(t *testing.T) {
		err := &RateLimitError{Kind: RateLimitInterval, RetryAfter: 2 * time.Second}
		if !strings.Contains(err.Error(), "2s") {
			t.Errorf("error message missing retry hint: %q", err.Error())
		}
	})
}

func TestEventPublishError(t *testing.T) {
	cause := errors.New("broker down")
	err := &EventPublishError{Event: "MessageSent", MessageID: 42, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("EventPublishError does not unwrap to its cause")
	}

	epe, ok := IsEventPublishError(fmt.Errorf("send: %w", err))
	if !ok {
		t.Fatal("IsEventPublishError = false")
	}
	if epe.MessageID != 42 || epe.Event != "MessageSent" {
		t.Errorf("details = %+v", epe)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"rate limited", &RateLimitError{Kind: RateLimitHour}, http.StatusTooManyRequests},
		{"self send", ErrSelfSend, http.StatusBadRequest},
		{"inactive recipient", ErrInactiveRecipient, http.StatusBadRequest},
		{"duplicate", ErrDuplicateMessage, http.StatusBadRequest},
		{"validation", &ValidationError{Field: "subject", Message: "empty"}, http.StatusBadRequest},
		{"invalid id", ErrInvalidID, http.StatusBadRequest},
		{"duplicate entry", store.ErrDuplicateEntry, http.StatusBadRequest},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
		{"wrapped not found", fmt.Errorf("recipient 9: %w", ErrNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
