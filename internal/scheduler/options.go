package scheduler

import (
	"time"

	"github.com/yakoovad/ensemble-events/pkg/metrics"
	"go.uber.org/zap"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocation sets the zone event dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStepTimeout bounds each step of a tick.
func WithStepTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.stepTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
