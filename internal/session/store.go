package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the Store's hydration lifecycle phase.
type State int

const (
	// StateUninitialized means Hydrate has not been called yet.
	StateUninitialized State = iota
	// StateHydrating means the persisted session is being restored.
	StateHydrating
	// StateReady means the store's state is settled and safe to branch on.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// defaultHydrateTimeout bounds how long Hydrate waits for the storage read.
// If the read never completes, the store is forced ready (logged out) so the
// rest of the client cannot hang on session state forever.
const defaultHydrateTimeout = 5 * time.Second

// Store is the single source of truth for the authentication session.
// The session is only ever replaced wholesale via Set — no field-level
// mutation from outside — and every mutation is persisted to disk.
//
// Reads must wait for hydration: call Await (or select on Ready) before
// branching on session state.
type Store struct {
	path   string
	logger *slog.Logger

	// hydrateTimeout and loadFunc are overridable in tests.
	hydrateTimeout time.Duration
	loadFunc       func(path string) (*Session, error)

	mu      sync.Mutex
	state   State
	current *Session
	loadErr error
	subs    map[int]func(*Session)
	nextSub int

	ready chan struct{}
}

// NewStore creates a Store persisting to the given path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:           path,
		logger:         logger,
		hydrateTimeout: defaultHydrateTimeout,
		loadFunc:       loadFile,
		subs:           make(map[int]func(*Session)),
		ready:          make(chan struct{}),
	}
}

// Hydrate restores the persisted session. It must be called exactly once at
// startup, before anything reads session state. A failed or timed-out read
// still transitions the store to ready (with no session) — a recorded
// failure, never a permanent hang. Subsequent calls return the recorded
// hydration error without reloading.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		err := s.loadErr
		s.mu.Unlock()

		return err
	}

	s.state = StateHydrating
	s.mu.Unlock()

	type result struct {
		sess *Session
		err  error
	}

	resCh := make(chan result, 1)

	go func() {
		sess, err := s.loadFunc(s.path)
		resCh <- result{sess: sess, err: err}
	}()

	timer := time.NewTimer(s.hydrateTimeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		s.finishHydration(res.sess, res.err)

		if res.err != nil {
			s.logger.Warn("session hydration failed",
				slog.String("path", s.path),
				slog.String("error", res.err.Error()),
			)

			return res.err
		}

		s.logger.Debug("session hydrated",
			slog.String("path", s.path),
			slog.Bool("present", res.sess != nil),
		)

		return nil

	case <-timer.C:
		err := fmt.Errorf("session: hydration timed out after %s", s.hydrateTimeout)
		s.finishHydration(nil, err)
		s.logger.Warn("session hydration timed out, forcing ready state",
			slog.String("path", s.path),
		)

		return err

	case <-ctx.Done():
		err := fmt.Errorf("session: hydration canceled: %w", ctx.Err())
		s.finishHydration(nil, err)

		return err
	}
}

// finishHydration records the hydration outcome and signals readiness.
// A late loader result arriving after a timeout already settled the store
// is discarded — the first settlement wins.
func (s *Store) finishHydration(sess *Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		return
	}

	s.state = StateReady
	s.current = sess
	s.loadErr = err
	close(s.ready)
}

// Ready returns a channel closed once hydration has settled.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Await blocks until the store is ready, then returns the current session
// (nil when logged out). The session pointer must be treated as immutable.
func (s *Store) Await(ctx context.Context) (*Session, error) {
	select {
	case <-s.ready:
		return s.Current(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("session: awaiting hydration: %w", ctx.Err())
	}
}

// Current returns the current session without waiting. Callers that may run
// before hydration must use Await instead.
func (s *Store) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// State returns the current lifecycle phase.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Set atomically replaces the session and persists the change. A nil session
// clears authentication and removes the file. Partial sessions are rejected
// so the store can never hold one. Subscribers are notified outside the
// store's mutex.
func (s *Store) Set(sess *Session) error {
	if sess != nil && !sess.Valid() {
		return fmt.Errorf("session: refusing to store partial session (mode %q)", sess.Mode)
	}

	var persistErr error
	if sess == nil {
		persistErr = removeFile(s.path)
	} else {
		persistErr = saveFile(s.path, sess)
	}

	if persistErr != nil {
		return persistErr
	}

	s.mu.Lock()
	s.current = sess
	notify := make([]func(*Session), 0, len(s.subs))

	for _, fn := range s.subs {
		notify = append(notify, fn)
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn(sess)
	}

	return nil
}

// Clear removes the session (logout). Equivalent to Set(nil).
func (s *Store) Clear() error {
	return s.Set(nil)
}

// Subscribe registers a callback invoked after every session replacement.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(*Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
