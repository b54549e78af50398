package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownGrace bounds how long a graceful shutdown may take. A resync stuck
// on a dead connection or a wedged database close would otherwise leave the
// daemon hanging after Ctrl-C with no way out short of a second signal.
const shutdownGrace = 30 * time.Second

// shutdownContext returns a context that cancels on SIGINT/SIGTERM so the
// watch daemon's errgroup can drain an in-flight resync. After the first
// signal the process force-exits on either a second signal or the grace
// deadline, whichever comes first.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("shutting down",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		grace := time.NewTimer(shutdownGrace)
		defer grace.Stop()

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, exiting immediately",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-grace.C:
			logger.Warn("shutdown stalled past grace period, exiting",
				slog.Duration("grace", shutdownGrace),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
