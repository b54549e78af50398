package api

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/maynetee/osfeed-go/internal/session"
)

// refreshKey is the singleflight key — there is one refresh flight
// process-wide, shared across every caller.
const refreshKey = "refresh"

// Coordinator serializes credential refreshes: any number of requests may
// discover an expired session concurrently, but exactly one refresh exchange
// runs. Callers that arrive while a flight is active wait for it and share
// its outcome instead of starting a second exchange.
//
// On exchange failure the session store is cleared (forced logout) exactly
// once, inside the flight, before any waiter observes the error.
type Coordinator struct {
	store  *session.Store
	creds  Credentials
	logger *slog.Logger

	group singleflight.Group
}

// NewCoordinator creates a Coordinator over the given store and transport
// strategy.
func NewCoordinator(store *session.Store, creds Credentials, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{store: store, creds: creds, logger: logger}
}

// Refresh performs (or joins) the single refresh flight. stale is the
// session the caller observed failing; if the store has already moved past
// it, the refresh is done and no new exchange starts. Returns nil once the
// store holds fresh credentials, or the flight's error — identical for
// every waiter — when the exchange fails.
func (c *Coordinator) Refresh(ctx context.Context, stale *session.Session) error {
	_, err, shared := c.group.Do(refreshKey, func() (any, error) {
		// Sessions are replaced wholesale, so pointer identity tells a
		// stale failure from a current one. A 401 observed against a
		// session that has since been swapped for a fresh one needs no
		// second exchange. A cleared session still goes through doRefresh
		// so the caller gets the failure, not a phantom success.
		if cur := c.store.Current(); cur != nil && cur != stale {
			return nil, nil
		}

		return nil, c.doRefresh(ctx)
	})

	if shared {
		c.logger.Debug("joined in-flight refresh", slog.Bool("failed", err != nil))
	}

	return err
}

// doRefresh runs exactly once per flight. The exchange is detached from the
// triggering caller's context: waiters joined after the trigger must not
// have their shared flight aborted by the trigger's cancellation.
func (c *Coordinator) doRefresh(ctx context.Context) error {
	flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	sess := c.store.Current()

	next, err := c.creds.Refresh(flightCtx, sess)
	if err != nil {
		c.logger.Warn("refresh exchange failed, clearing session",
			slog.String("error", err.Error()),
		)

		// Forced logout — the only cross-cutting side effect this layer
		// produces. Happens once per flight no matter how many waiters.
		if clearErr := c.store.Clear(); clearErr != nil {
			c.logger.Error("clearing session after failed refresh",
				slog.String("error", clearErr.Error()),
			)
		}

		return err
	}

	if setErr := c.store.Set(next); setErr != nil {
		return setErr
	}

	c.logger.Info("session refreshed")

	return nil
}
