// Package poll drives data freshness: a background scheduler that resyncs
// on a fixed cadence while the client is visible, and a waiter that bounds
// how long manual refresh blocks on server-side jobs.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ResyncFunc performs one data resynchronization against the server.
type ResyncFunc func(ctx context.Context) error

// Visibility reports whether the client currently wants background polling.
// The watch daemon derives this from the config pause flag; a UI embedding
// would derive it from document visibility.
type Visibility interface {
	Visible() bool
}

// VisibilityFunc adapts a plain function to the Visibility interface.
type VisibilityFunc func() bool

func (f VisibilityFunc) Visible() bool { return f() }

// Cycle is a snapshot of the scheduler's current run, read by status
// displays to show staleness.
type Cycle struct {
	LastSuccessAt time.Time
	IsRefreshing  bool
	Cadence       time.Duration
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Resync     ResyncFunc
	Visibility Visibility
	Interval   time.Duration
	Logger     *slog.Logger
}

// Scheduler issues the resync operation on a fixed cadence. Ticks are
// skipped while not visible — polling pauses rather than queueing missed
// ticks — and regaining visibility triggers at most one catch-up resync
// when the data has gone stale. A failed resync is simply retried on the
// next tick; this layer adds no backoff.
type Scheduler struct {
	resync     ResyncFunc
	visibility Visibility
	interval   time.Duration
	logger     *slog.Logger

	// nowFunc is overridable in tests.
	nowFunc func() time.Time

	mu          sync.Mutex
	polling     bool
	lastSuccess time.Time
}

// NewScheduler creates a stopped Scheduler. Call Run to arm it.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	vis := cfg.Visibility
	if vis == nil {
		vis = VisibilityFunc(func() bool { return true })
	}

	return &Scheduler{
		resync:     cfg.Resync,
		visibility: vis,
		interval:   cfg.Interval,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// Run arms the cadence timer and blocks until ctx is canceled. The timer is
// fully torn down on return; Run itself always returns ctx.Err()'s cause
// wrapped as nil (normal shutdown is not an error).
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("polling scheduler armed",
		slog.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("polling scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one cadence tick: skipped when not visible, otherwise a poll.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.visibility.Visible() {
		s.logger.Debug("tick skipped, client not visible")
		return
	}

	s.poll(ctx)
}

// NotifyVisible implements catch-up semantics: called when visibility
// returns, it fires one immediate poll if more than one interval has passed
// since the last success — one poll no matter how long the pause lasted.
func (s *Scheduler) NotifyVisible(ctx context.Context) {
	s.mu.Lock()
	stale := s.nowFunc().Sub(s.lastSuccess) > s.interval
	s.mu.Unlock()

	if !stale {
		return
	}

	s.logger.Debug("visibility returned with stale data, catch-up resync")
	s.poll(ctx)
}

// poll runs one resync cycle behind the re-entrancy guard: a tick that
// fires while a cycle is still in flight is a no-op.
func (s *Scheduler) poll(ctx context.Context) {
	s.mu.Lock()
	if s.polling {
		s.mu.Unlock()
		s.logger.Debug("resync already in flight, skipping tick")

		return
	}

	s.polling = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}()

	if err := s.resync(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("resync failed, will retry on next tick",
			slog.String("error", err.Error()),
		)

		return
	}

	now := s.nowFunc()

	s.mu.Lock()
	s.lastSuccess = now
	s.mu.Unlock()

	s.logger.Debug("resync succeeded", slog.Time("at", now))
}

// Cycle returns a snapshot of the current run.
func (s *Scheduler) Cycle() Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Cycle{
		LastSuccessAt: s.lastSuccess,
		IsRefreshing:  s.polling,
		Cadence:       s.interval,
	}
}

// SetLastSuccess seeds the staleness clock, typically from the persisted
// cycle ledger at daemon startup.
func (s *Scheduler) SetLastSuccess(t time.Time) {
	s.mu.Lock()
	s.lastSuccess = t
	s.mu.Unlock()
}
