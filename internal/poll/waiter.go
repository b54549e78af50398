package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maynetee/osfeed-go/internal/api"
)

// Job-status poll cadence and the wall-clock convergence bound. Fixed
// constants, no jitter.
const (
	defaultStatusInterval = 2 * time.Second
	defaultBudget         = 30 * time.Second
)

// JobsAPI is the slice of the API client the waiter needs.
type JobsAPI interface {
	SubmitResync(ctx context.Context, ids []string) ([]string, error)
	JobStatuses(ctx context.Context, ids []string) ([]api.Job, error)
}

// Waiter turns "start N background jobs, then wait for them" into one
// bounded call for manual-refresh actions. Waiting ends when every job is
// terminal or the budget elapses — a timed-out wait is convergence cut
// short, not an error, so the UI never hangs on a slow backend job.
type Waiter struct {
	jobs           JobsAPI
	statusInterval time.Duration
	budget         time.Duration
	logger         *slog.Logger

	// sleepFunc and nowFunc are overridable in tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// NewWaiter creates a Waiter with the default cadence and budget.
func NewWaiter(jobs JobsAPI, logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Waiter{
		jobs:           jobs,
		statusInterval: defaultStatusInterval,
		budget:         defaultBudget,
		logger:         logger,
		sleepFunc:      timeSleep,
		nowFunc:        time.Now,
	}
}

// Converge submits a resync batch for the given source ids (all sources
// when empty) and waits for the jobs to finish, up to the budget. It
// reports whether every job reached a terminal state; false means the
// budget elapsed first, which callers treat as converged-enough. A failed
// submission surfaces immediately without entering the poll loop.
func (w *Waiter) Converge(ctx context.Context, ids []string) (bool, error) {
	jobIDs, err := w.jobs.SubmitResync(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("submitting resync: %w", err)
	}

	w.logger.Info("resync jobs submitted",
		slog.Int("jobs", len(jobIDs)),
	)

	if len(jobIDs) == 0 {
		return true, nil
	}

	return w.wait(ctx, jobIDs)
}

// wait polls job status until every submitted job is terminal or the
// budget elapses since submission.
func (w *Waiter) wait(ctx context.Context, jobIDs []string) (bool, error) {
	deadline := w.nowFunc().Add(w.budget)

	for {
		jobs, err := w.jobs.JobStatuses(ctx, jobIDs)
		if err != nil {
			if ctx.Err() != nil {
				return false, fmt.Errorf("waiting for jobs: %w", ctx.Err())
			}

			// A failed status poll is retried on the next interval; the
			// budget still bounds the whole wait.
			w.logger.Warn("job status poll failed",
				slog.String("error", err.Error()),
			)
		} else if done, terminal := countTerminal(jobIDs, jobs); done {
			w.logger.Debug("all jobs terminal",
				slog.Int("terminal", terminal),
			)

			return true, nil
		}

		if !w.nowFunc().Before(deadline) {
			w.logger.Info("job convergence budget elapsed, proceeding",
				slog.Duration("budget", w.budget),
			)

			return false, nil
		}

		if sleepErr := w.sleepFunc(ctx, w.statusInterval); sleepErr != nil {
			return false, fmt.Errorf("waiting for jobs: %w", sleepErr)
		}
	}
}

// countTerminal reports whether every submitted job id has a terminal
// status in the response, plus how many are terminal. Jobs missing from
// the response count as non-terminal.
func countTerminal(submitted []string, jobs []api.Job) (bool, int) {
	terminal := make(map[string]bool, len(jobs))

	for _, j := range jobs {
		if j.Terminal() {
			terminal[j.ID] = true
		}
	}

	count := 0

	for _, id := range submitted {
		if terminal[id] {
			count++
		}
	}

	return count == len(submitted), count
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Waiter.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
