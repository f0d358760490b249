package gamemail

import (
	"log/slog"
	"testing"
	"time"
)

func TestNewOptions(t *testing.T) {
	t.Run("returns defaults without options", func(t *testing.T) {
		opts := newOptions()

		if opts.limits != DefaultRateLimits() {
			t.Errorf("expected default rate limits, got %+v", opts.limits)
		}
		if opts.msgLimits.MaxSubjectLength != DefaultMaxSubjectLength {
			t.Errorf("expected maxSubjectLength %v, got %v", DefaultMaxSubjectLength, opts.msgLimits.MaxSubjectLength)
		}
		if opts.msgLimits.MaxBodySize != DefaultMaxBodySize {
			t.Errorf("expected maxBodySize %v, got %v", DefaultMaxBodySize, opts.msgLimits.MaxBodySize)
		}
		if opts.msgLimits.MaxAttachmentCount != DefaultMaxAttachmentCount {
			t.Errorf("expected maxAttachmentCount %v, got %v", DefaultMaxAttachmentCount, opts.msgLimits.MaxAttachmentCount)
		}
		if opts.maxConcurrentSends != DefaultMaxConcurrentSends {
			t.Errorf("expected maxConcurrentSends %v, got %v", DefaultMaxConcurrentSends, opts.maxConcurrentSends)
		}
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("expected shutdownTimeout %v, got %v", DefaultShutdownTimeout, opts.shutdownTimeout)
		}
		if opts.tracingEnabled || opts.metricsEnabled {
			t.Error("expected telemetry disabled by default")
		}
	})
}

func TestWithRateLimits(t *testing.T) {
	t.Run("replaces all fields", func(t *testing.T) {
		opts := newOptions(WithRateLimits(RateLimits{
			DuplicateWindow: time.Minute,
			MinInterval:     time.Second,
			MaxPerMinute:    5,
			MaxPerHour:      20,
		}))

		want := RateLimits{
			DuplicateWindow: time.Minute,
			MinInterval:     time.Second,
			MaxPerMinute:    5,
			MaxPerHour:      20,
		}
		if opts.limits != want {
			t.Errorf("limits = %+v, want %+v", opts.limits, want)
		}
	})

	t.Run("zero fields keep defaults", func(t *testing.T) {
		opts := newOptions(WithRateLimits(RateLimits{MaxPerMinute: 5}))

		if opts.limits.MaxPerMinute != 5 {
			t.Errorf("maxPerMinute = %d, want 5", opts.limits.MaxPerMinute)
		}
		if opts.limits.DuplicateWindow != DefaultDuplicateWindow {
			t.Errorf("duplicateWindow = %v, want default", opts.limits.DuplicateWindow)
		}
		if opts.limits.MinInterval != DefaultMinInterval {
			t.Errorf("minInterval = %v, want default", opts.limits.MinInterval)
		}
		if opts.limits.MaxPerHour != DefaultMaxPerHour {
			t.Errorf("maxPerHour = %d, want default", opts.limits.MaxPerHour)
		}
	})

	t.Run("individual setters", func(t *testing.T) {
		opts := newOptions(
			WithDuplicateWindow(2*time.Minute),
			WithMinInterval(5*time.Second),
			WithMaxPerMinute(3),
			WithMaxPerHour(15),
		)

		want := RateLimits{
			DuplicateWindow: 2 * time.Minute,
			MinInterval:     5 * time.Second,
			MaxPerMinute:    3,
			MaxPerHour:      15,
		}
		if opts.limits != want {
			t.Errorf("limits = %+v, want %+v", opts.limits, want)
		}
	})

	t.Run("negative values ignored", func(t *testing.T) {
		opts := newOptions(WithMinInterval(-time.Second), WithMaxPerHour(-1))

		if opts.limits != DefaultRateLimits() {
			t.Errorf("limits = %+v, want defaults", opts.limits)
		}
	})
}

func TestWithLogger(t *testing.T) {
	t.Run("sets custom logger", func(t *testing.T) {
		customLogger := slog.Default().With("component", "test")
		opts := newOptions(WithLogger(customLogger))
		if opts.logger != customLogger {
			t.Error("expected custom logger to be set")
		}
	})

	t.Run("ignores nil logger", func(t *testing.T) {
		opts := newOptions(WithLogger(nil))
		if opts.logger == nil {
			t.Error("expected default logger, got nil")
		}
	})
}

func TestWithShutdownTimeout(t *testing.T) {
	t.Run("sets timeout", func(t *testing.T) {
		opts := newOptions(WithShutdownTimeout(5 * time.Second))
		if opts.shutdownTimeout != 5*time.Second {
			t.Errorf("shutdownTimeout = %v, want 5s", opts.shutdownTimeout)
		}
	})

	t.Run("rejects values below the minimum", func(t *testing.T) {
		opts := newOptions(WithShutdownTimeout(time.Millisecond))
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("shutdownTimeout = %v, want default", opts.shutdownTimeout)
		}
	})
}

func TestWithMessageLimits(t *testing.T) {
	opts := newOptions(
		WithMaxSubjectLength(50),
		WithMaxBodySize(1024),
		WithMaxAttachmentCount(3),
	)

	if opts.msgLimits.MaxSubjectLength != 50 {
		t.Errorf("maxSubjectLength = %d, want 50", opts.msgLimits.MaxSubjectLength)
	}
	if opts.msgLimits.MaxBodySize != 1024 {
		t.Errorf("maxBodySize = %d, want 1024", opts.msgLimits.MaxBodySize)
	}
	if opts.msgLimits.MaxAttachmentCount != 3 {
		t.Errorf("maxAttachmentCount = %d, want 3", opts.msgLimits.MaxAttachmentCount)
	}
}
