package gamemail

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbaliyan/gamemail/store"
)

// Default configuration values.
const (
	// Rate limits
	DefaultDuplicateWindow = 300 * time.Second // identical message suppression window
	DefaultMinInterval     = 3 * time.Second   // minimum gap between sends
	DefaultMaxPerMinute    = 10                // sends per sender per minute
	DefaultMaxPerHour      = 50                // sends per sender per hour

	// Message limits
	DefaultMaxSubjectLength   = 200
	DefaultMaxBodySize        = 64 * 1024 // 64 KB
	DefaultMaxAttachmentCount = 10

	// Concurrency limits
	DefaultMaxConcurrentSends = 10 // max concurrent send operations per service

	// Shutdown
	DefaultShutdownTimeout = 30 * time.Second
	MinShutdownTimeout     = 1 * time.Second
)

// RateLimits carries the four configured rate-limit values.
type RateLimits struct {
	// DuplicateWindow is how long an identical (recipient, subject,
	// body) message blocks a resend.
	DuplicateWindow time.Duration
	// MinInterval is the minimum gap between any two sends from the
	// same sender.
	MinInterval time.Duration
	// MaxPerMinute caps sends per sender in a trailing 60s window.
	MaxPerMinute int
	// MaxPerHour caps sends per sender in a trailing 3600s window.
	MaxPerHour int
}

// DefaultRateLimits returns the default rate-limit configuration.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		DuplicateWindow: DefaultDuplicateWindow,
		MinInterval:     DefaultMinInterval,
		MaxPerMinute:    DefaultMaxPerMinute,
		MaxPerHour:      DefaultMaxPerHour,
	}
}

// MessageLimits carries configured message validation limits.
type MessageLimits struct {
	MaxSubjectLength   int
	MaxBodySize        int
	MaxAttachmentCount int
}

// options holds service configuration.
type options struct {
	store  store.Store
	logger *slog.Logger

	hooks []Hook

	limits     RateLimits
	msgLimits  MessageLimits
	clock      func() time.Time

	// Concurrency limits
	maxConcurrentSends int

	// Shutdown
	shutdownTimeout time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool
	eventTransport        transport.Transport
	redisClient           redis.UniversalClient
	onEventPublishFailure EventPublishFailureFunc
}

// EventPublishFailureFunc is called when an event fails to publish.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic recovery.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger: slog.Default(),
		limits: DefaultRateLimits(),
		msgLimits: MessageLimits{
			MaxSubjectLength:   DefaultMaxSubjectLength,
			MaxBodySize:        DefaultMaxBodySize,
			MaxAttachmentCount: DefaultMaxAttachmentCount,
		},
		clock:              func() time.Time { return time.Now().UTC() },
		maxConcurrentSends: DefaultMaxConcurrentSends,
		shutdownTimeout:    DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures a mail service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source used for rate-limit windows and
// timestamps. Intended for tests; defaults to time.Now in UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// --- Rate Limit Options ---

// WithRateLimits replaces the full rate-limit configuration.
// Zero or negative fields keep their defaults.
func WithRateLimits(limits RateLimits) Option {
	return func(o *options) {
		if limits.DuplicateWindow > 0 {
			o.limits.DuplicateWindow = limits.DuplicateWindow
		}
		if limits.MinInterval > 0 {
			o.limits.MinInterval = limits.MinInterval
		}
		if limits.MaxPerMinute > 0 {
			o.limits.MaxPerMinute = limits.MaxPerMinute
		}
		if limits.MaxPerHour > 0 {
			o.limits.MaxPerHour = limits.MaxPerHour
		}
	}
}

// WithDuplicateWindow sets how long an identical message blocks a resend.
// Default is 300 seconds.
func WithDuplicateWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.limits.DuplicateWindow = d
		}
	}
}

// WithMinInterval sets the minimum gap between sends from one sender.
// Default is 3 seconds.
func WithMinInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.limits.MinInterval = d
		}
	}
}

// WithMaxPerMinute sets the per-sender sends-per-minute cap.
// Default is 10.
func WithMaxPerMinute(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limits.MaxPerMinute = n
		}
	}
}

// WithMaxPerHour sets the per-sender sends-per-hour cap.
// Default is 50.
func WithMaxPerHour(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limits.MaxPerHour = n
		}
	}
}

// --- Message Limit Options ---

// WithMaxSubjectLength sets the maximum subject length in characters.
// Default is 200.
func WithMaxSubjectLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.msgLimits.MaxSubjectLength = n
		}
	}
}

// WithMaxBodySize sets the maximum body size in bytes.
// Default is 64 KB.
func WithMaxBodySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.msgLimits.MaxBodySize = n
		}
	}
}

// WithMaxAttachmentCount sets the maximum number of attachments per message.
// Default is 10.
func WithMaxAttachmentCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.msgLimits.MaxAttachmentCount = n
		}
	}
}

// --- Hook Options ---

// WithHook registers a hook with the service.
// Hooks can intercept the send path; see SendHook.
// Multiple hooks can be registered by calling this option multiple times.
func WithHook(h Hook) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = append(o.hooks, h)
		}
	}
}

// WithHooks registers multiple hooks at once.
func WithHooks(hooks ...Hook) Option {
	return func(o *options) {
		for _, h := range hooks {
			if h != nil {
				o.hooks = append(o.hooks, h)
			}
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry
// and event bus naming. Default is "gamemail".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentSends sets the maximum number of concurrent send operations.
// Default is 10.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentSends = n
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight
// operations during graceful shutdown.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures
// should cause the operation to fail. By default, event failures are
// logged but the operation succeeds.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and subscribing.
// If not provided, a noop transport is used (events are silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams for reliable delivery.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}
