// Package scheduler advances event status by wall-clock time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/pkg/metrics"
	"go.uber.org/zap"
)

const (
	defaultInterval    = time.Minute
	defaultStepTimeout = 30 * time.Second
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// Advancer is the part of the event store the scheduler needs.
type Advancer interface {
	AdvanceDue(ctx context.Context, from, to model.EventStatus, boundary repository.Boundary, now time.Time) (int64, error)
}

type step struct {
	name     string
	from     model.EventStatus
	to       model.EventStatus
	boundary repository.Boundary
}

// Start runs before finish so an event whose whole window has passed since the
// last tick moves through both states in one tick.
var steps = []step{
	{name: "start", from: model.EventStatusScheduled, to: model.EventStatusInProgress, boundary: repository.BoundaryStart},
	{name: "finish", from: model.EventStatusInProgress, to: model.EventStatusCompleted, boundary: repository.BoundaryEnd},
}

// TickResult counts the events moved by one tick.
type TickResult struct {
	Started   int64
	Completed int64
	Failed    []string
}

type Scheduler struct {
	events      Advancer
	interval    time.Duration
	stepTimeout time.Duration
	loc         *time.Location
	now         func() time.Time
	metrics     *metrics.Manager
	logger      *zap.Logger

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

func New(events Advancer, opts ...Option) *Scheduler {
	s := &Scheduler{
		events:      events,
		interval:    defaultInterval,
		stepTimeout: defaultStepTimeout,
		loc:         time.UTC,
		now:         time.Now,
		metrics:     metrics.Default(),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.Named("scheduler")

	return s
}

// Tick runs every step once. A failing step is logged and skipped; the other
// steps still run. Tick never fails.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	started := time.Now()
	now := s.now().In(s.loc)

	var res TickResult
	for _, st := range steps {
		n, err := s.runStep(ctx, st, now)
		if err != nil {
			s.logger.Error("scheduler step failed",
				zap.String("step", st.name),
				zap.Time("now", now),
				zap.Error(err))
			s.metrics.RecordStepFailure(st.name)
			res.Failed = append(res.Failed, st.name)
			continue
		}

		s.metrics.RecordTransitions(string(st.from), string(st.to), n)
		if n > 0 {
			s.logger.Info("events advanced",
				zap.String("from", string(st.from)),
				zap.String("to", string(st.to)),
				zap.Int64("count", n))
		}

		switch st.to {
		case model.EventStatusInProgress:
			res.Started = n
		case model.EventStatusCompleted:
			res.Completed = n
		}
	}

	s.metrics.RecordTick(started, time.Since(started))

	return res
}

func (s *Scheduler) runStep(ctx context.Context, st step, now time.Time) (int64, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	return s.events.AdvanceDue(stepCtx, st.from, st.to, st.boundary, now)
}

// Start launches the tick loop. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	s.running = true
	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, s.shutdown, s.done)

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval), zap.String("timezone", s.loc.String()))

	return nil
}

func (s *Scheduler) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the loop and waits for an in-flight tick, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.shutdown)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
		return errors.Wrap(ctx.Err(), "scheduler stop timed out")
	}
}
