package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maynetee/osfeed-go/internal/config"
	"github.com/maynetee/osfeed-go/internal/poll"
	"github.com/maynetee/osfeed-go/internal/statedb"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background polling daemon",
		Long: `Poll the OSFeed service on the configured cadence, keeping local
freshness state up to date.

Polling pauses while the client is paused ('osfeed pause') and resumes —
with an immediate catch-up resync if the data has gone stale — when resumed.
Config edits are picked up live; stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	ctx := shutdownContext(cmd.Context(), logger)

	stack, err := newClientStack(ctx, cc)
	if err != nil {
		return err
	}

	interval, err := cc.Config.Interval()
	if err != nil {
		return err
	}

	db, err := statedb.Open(ctx, cc.Config.StateDBPath(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// The live config is swapped wholesale on reload; visibility reads it
	// at every tick so scheduled resumes (paused_until) take effect without
	// an edit.
	var liveCfg atomic.Pointer[config.Config]

	liveCfg.Store(cc.Config)

	resync := makeResyncFunc(stack, db, logger)

	sched := poll.NewScheduler(poll.SchedulerConfig{
		Resync: resync,
		Visibility: poll.VisibilityFunc(func() bool {
			return !liveCfg.Load().EffectivePaused(time.Now())
		}),
		Interval: interval,
		Logger:   logger,
	})

	// Seed the staleness clock from the persisted ledger so a daemon
	// restart does not force an immediate catch-up.
	if last, lastErr := db.LastSuccess(ctx); lastErr == nil && !last.IsZero() {
		sched.SetLastSuccess(last)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		return config.Watch(gctx, cc.Flags.ConfigPath, logger, func(next *config.Config) {
			prev := liveCfg.Swap(next)

			wasPaused := prev.EffectivePaused(time.Now())
			isPaused := next.EffectivePaused(time.Now())

			if wasPaused && !isPaused {
				sched.NotifyVisible(gctx)
			}
		})
	})

	// A paused_until expiry changes the effective pause state without any
	// file event, so the config watcher never sees it. Poll the edge so the
	// catch-up resync fires promptly instead of waiting out a cadence tick.
	g.Go(func() error {
		return monitorScheduledResume(gctx, resumeCheckInterval,
			func() bool { return liveCfg.Load().EffectivePaused(time.Now()) },
			func() { sched.NotifyVisible(gctx) },
		)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("watch daemon: %w", err)
	}

	return nil
}

// resumeCheckInterval is how often the watch daemon re-evaluates the
// effective pause state for scheduled resumes.
const resumeCheckInterval = 15 * time.Second

// monitorScheduledResume watches the paused→unpaused edge and invokes
// onResume once per transition. It complements the config watcher, which
// only reacts to file events. Blocks until ctx is canceled.
func monitorScheduledResume(ctx context.Context, interval time.Duration, paused func() bool, onResume func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasPaused := paused()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			isPaused := paused()
			if wasPaused && !isPaused {
				onResume()
			}

			wasPaused = isPaused
		}
	}
}

// makeResyncFunc builds the per-cycle resync operation: fetch the content
// summary, append the outcome to the cycle ledger, and on success update the
// new-item counter shown by the status command.
func makeResyncFunc(stack *clientStack, db *statedb.DB, logger *slog.Logger) poll.ResyncFunc {
	return func(ctx context.Context) error {
		started := time.Now()

		summary, err := stack.Client.FetchSummary(ctx)
		finished := time.Now()

		rec := statedb.CycleRecord{
			StartedAt:  started,
			FinishedAt: finished,
			Trigger:    statedb.TriggerScheduled,
		}

		if err != nil {
			rec.Outcome = statedb.OutcomeFailure
			if recErr := db.RecordCycle(ctx, rec); recErr != nil {
				logger.Warn("recording failed cycle", "error", recErr.Error())
			}

			return err
		}

		rec.Outcome = statedb.OutcomeSuccess
		rec.NewItems = summary.NewSinceLastSync

		if recErr := db.RecordCycle(ctx, rec); recErr != nil {
			logger.Warn("recording cycle", "error", recErr.Error())
		}

		if setErr := db.SetNewItems(ctx, summary.NewSinceLastSync); setErr != nil {
			logger.Warn("updating new-item counter", "error", setErr.Error())
		}

		return nil
	}
}
