package serializer

import (
	"log/slog"
	"time"

	"github.com/rohankatakam/graphinventory/internal/metrics"
)

// DefaultMaxAttempts bounds parent evaluations: 1 initial + 2 retries
const DefaultMaxAttempts = 3

// Option configures a Serializer
type Option func(*Serializer)

// WithMaxAttempts sets the total number of parent evaluations; values below 1 are ignored
func WithMaxAttempts(n int) Option {
	return func(s *Serializer) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithRetryDelay pauses between parent evaluation attempts
func WithRetryDelay(d time.Duration) Option {
	return func(s *Serializer) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithMetrics records attempts and failures
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Serializer) {
		s.metrics = m
	}
}

// WithLogger replaces the component logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Serializer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for resource versions
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) {
		if now != nil {
			s.now = now
		}
	}
}
