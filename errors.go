package gamemail

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rbaliyan/gamemail/store"
)

// Sentinel errors for the gamemail package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, gamemail.ErrNotFound) will match both service-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message or user cannot be found,
	// or when the message is hidden by the viewer's own soft-delete.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("gamemail: %w", store.ErrNotFound)

	// ErrForbidden is returned when the viewer is not a party to the
	// message, or is not the recipient for a mark-read.
	// Wraps store.ErrForbidden for consistent error checking.
	ErrForbidden = fmt.Errorf("gamemail: %w", store.ErrForbidden)

	// ErrSelfSend is returned when a sender addresses themselves.
	ErrSelfSend = errors.New("gamemail: cannot send message to yourself")

	// ErrInactiveRecipient is returned when the recipient account is deactivated.
	ErrInactiveRecipient = errors.New("gamemail: recipient is not active")

	// ErrDuplicateMessage is returned when an identical message to the
	// same recipient was sent within the duplicate window.
	ErrDuplicateMessage = errors.New("gamemail: duplicate message")

	// ErrRateLimited is the base error for all rate-limit rejections.
	// RateLimitError wraps it; use errors.Is(err, ErrRateLimited) to
	// catch any of the interval/minute/hour rejections.
	ErrRateLimited = errors.New("gamemail: rate limited")

	// ErrInvalidMessage is returned for message validation failures.
	ErrInvalidMessage = errors.New("gamemail: invalid message")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("gamemail: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("gamemail: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("gamemail: %w", store.ErrAlreadyConnected)

	// ErrInvalidID is returned when an invalid ID is provided.
	// Wraps store.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("gamemail: %w", store.ErrInvalidID)
)

// RateLimitKind identifies which rate-limit check rejected a send.
type RateLimitKind string

const (
	// RateLimitInterval means the sender's last message was too recent.
	RateLimitInterval RateLimitKind = "min_interval"
	// RateLimitMinute means the per-minute cap was reached.
	RateLimitMinute RateLimitKind = "per_minute"
	// RateLimitHour means the per-hour cap was reached.
	RateLimitHour RateLimitKind = "per_hour"
)

// RateLimitError is returned when a send is rejected by one of the
// time-based rate checks. Use errors.As() to extract it and
// errors.Is(err, ErrRateLimited) to test for the class.
type RateLimitError struct {
	// Kind identifies the failing check.
	Kind RateLimitKind
	// RetryAfter is the duration after which the same send could be
	// admitted. Zero if unknown.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("gamemail: rate limited (%s), retry after %s", e.Kind, e.RetryAfter)
	}
	return fmt.Sprintf("gamemail: rate limited (%s)", e.Kind)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// IsRateLimited checks if the error is a rate-limit rejection and
// returns its details.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateMessage)
}

// wrapStoreError translates store-level sentinels into their package
// counterparts. The package sentinels wrap the store ones, so after
// translation errors.Is matches at either layer. Errors that are not
// store sentinels pass through unchanged.
func wrapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, store.ErrInvalidID):
		return ErrInvalidID
	case errors.Is(err, store.ErrNotConnected):
		return ErrNotConnected
	default:
		return err
	}
}

// ValidationError provides details about a validation failure.
type ValidationError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gamemail: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidMessage
}

// EventPublishError is returned when event publishing fails but the
// operation succeeded. The message was sent/read/deleted, only the
// notification failed.
type EventPublishError struct {
	Event     string // The event name (e.g., "MessageSent")
	MessageID int64  // The message ID the event was for
	Err       error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("gamemail: event %s publish failed for message %d: %v", e.Event, e.MessageID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error
// and returns details. Useful when eventErrorsFatal=true but you still
// want to know the operation succeeded.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}

// HTTPStatus maps a service error to an HTTP status code.
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSelfSend),
		errors.Is(err, ErrInactiveRecipient),
		errors.Is(err, ErrDuplicateMessage),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, store.ErrInvalidID),
		errors.Is(err, store.ErrDuplicateEntry):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
