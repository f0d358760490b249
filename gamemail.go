package gamemail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"golang.org/x/sync/semaphore"

	"github.com/rbaliyan/gamemail/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the gamemail package without
// importing store directly.
type (
	ListOptions = store.ListOptions
	Message     = store.Message
	MessageList = store.MessageList
	Attachment  = store.Attachment
	User        = store.User
)

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// Service manages the mail system (server-side).
// It handles connections to storage and creates per-user mailbox clients.
type Service interface {
	ServiceHealth

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections, waiting for in-flight sends.
	Close(ctx context.Context) error
	// Mailbox returns a mail client for the given user.
	// The returned client shares the service's connections.
	Mailbox(userID int64) Mailbox
	// Events returns per-service event instances for subscribing and
	// publishing.
	Events() *ServiceEvents
	// RateLimits returns the configured rate-limit values.
	RateLimits() RateLimits
}

// MessageReader provides single message retrieval.
type MessageReader interface {
	Get(ctx context.Context, messageID int64) (*Message, error)
}

// MessageLister provides message listing.
type MessageLister interface {
	Inbox(ctx context.Context, opts ListOptions) (*MessageList, error)
	Sent(ctx context.Context, opts ListOptions) (*MessageList, error)
	UnreadCount(ctx context.Context) (int64, error)
}

// SendRequest contains the data needed to send a message.
type SendRequest struct {
	RecipientID int64
	Subject     string
	Body        string
	Attachments []Attachment
}

// MessageSender provides the rate-limited send path.
type MessageSender interface {
	Send(ctx context.Context, req SendRequest) (*Message, error)
}

// MessageMutator provides mark-read and soft-delete.
type MessageMutator interface {
	MarkRead(ctx context.Context, messageID int64) (*Message, error)
	Delete(ctx context.Context, messageID int64) error
}

// Mailbox provides mail operations for one authenticated user.
//
// Composed of focused interfaces:
//   - MessageReader: single message retrieval (Get)
//   - MessageLister: inbox/sent listings and unread count
//   - MessageSender: the rate-limited send path (Send)
//   - MessageMutator: mark-read and soft-delete
type Mailbox interface {
	UserID() int64
	MessageReader
	MessageLister
	MessageSender
	MessageMutator
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store   store.Store
	logger  *slog.Logger
	opts    *options
	state   int32 // stateDisconnected, stateConnecting, or stateConnected
	limiter *rateLimiter
	hooks   *hookRegistry
	otel    *otelInstrumentation

	// sendSem bounds concurrent sends across all users.
	sendSem *semaphore.Weighted

	// sendLocks serializes check-then-insert per sender so concurrent
	// sends from one sender cannot both pass the rate checks against
	// the same pre-insert history.
	sendLocks sync.Map // int64 -> *sync.Mutex

	eventBus *event.Bus
	events   *ServiceEvents
}

// NewService creates a new mail service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	hooks := newHookRegistry(o.logger)
	for _, h := range o.hooks {
		hooks.register(h)
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:   o.store,
		logger:  o.logger,
		opts:    o,
		limiter: newRateLimiter(o.store, o.limits, o.clock),
		hooks:   hooks,
		otel:    otelInstr,
		sendSem: semaphore.NewWeighted(int64(o.maxConcurrentSends)),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// RateLimits returns the configured rate-limit values.
func (s *service) RateLimits() RateLimits {
	return s.opts.limits
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// Three-state transition prevents Mailbox() callers from seeing
	// partial initialization.
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	if err := s.hooks.initAll(ctx); err != nil {
		s.eventBus.Close(ctx)
		s.store.Close(ctx)
		return fmt.Errorf("init hooks: %w", err)
	}

	success = true
	s.logger.Info("gamemail service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "gamemail"
	}
	// Each bus needs a unique name, so append a counter suffix.
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	return nil
}

// Close closes connections to storage backends.
// It waits up to the configured shutdown timeout for in-flight sends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// After the state flips, no new sends can start because checkAccess
	// fails. Acquiring every semaphore slot waits out the in-flight ones.
	s.logger.Info("waiting for in-flight operations to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.sendSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentSends)); err != nil {
		s.logger.Warn("timeout waiting for in-flight operations, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.sendSem.Release(int64(s.opts.maxConcurrentSends))
		s.logger.Info("all in-flight operations completed")
	}

	if err := s.hooks.closeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close hooks: %w", err))
	}

	// Close the event bus only when a real transport is configured.
	// A noop bus holds no resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Mailbox returns a mail client for the given user.
func (s *service) Mailbox(userID int64) Mailbox {
	return &userMailbox{
		userID:  userID,
		service: s,
	}
}

// senderLock returns the mutex serializing sends for one sender.
func (s *service) senderLock(senderID int64) *sync.Mutex {
	mu, _ := s.sendLocks.LoadOrStore(senderID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// userMailbox implements Mailbox for one user.
type userMailbox struct {
	userID  int64
	service *service
}

// UserID returns the user this mailbox belongs to.
func (m *userMailbox) UserID() int64 {
	return m.userID
}

// checkAccess verifies the service is connected and the user ID is valid.
func (m *userMailbox) checkAccess() error {
	if atomic.LoadInt32(&m.service.state) != stateConnected {
		return ErrNotConnected
	}
	if m.userID <= 0 {
		return ErrInvalidID
	}
	return nil
}
