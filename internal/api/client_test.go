package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynetee/osfeed-go/internal/session"
)

// noopRefresher is a Refresher that records calls and optionally swaps in a
// fresh session.
type noopRefresher struct {
	store *session.Store
	next  *session.Session
	err   error
	calls atomic.Int32
}

func (r *noopRefresher) Refresh(_ context.Context, _ *session.Session) error {
	r.calls.Add(1)

	if r.err != nil {
		return r.err
	}

	if r.next != nil {
		return r.store.Set(r.next)
	}

	return nil
}

func freshBearer(access string) *session.Session {
	return &session.Session{
		Mode:             session.ModeBearer,
		AccessToken:      access,
		RefreshToken:     "refresh-" + access,
		RefreshExpiresAt: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// newTestStack wires a store (holding the given session), bearer creds, and
// a client against the given server URL.
func newTestStack(t *testing.T, url string, sess *session.Session, refresher Refresher) (*Client, *session.Store) {
	t.Helper()

	store := newHydratedStore(t, sess)
	creds := NewBearerCredentials(url, http.DefaultClient, slog.Default())
	client := NewClient(url, http.DefaultClient, store, creds, refresher, slog.Default())

	return client, store
}

func TestDo_Success(t *testing.T) {
	var gotAuth, gotRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	client, _ := newTestStack(t, srv.URL, freshBearer("tok-1"), &noopRefresher{})

	resp, err := client.Do(context.Background(), http.MethodGet, "/content/summary", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"ok"}`, string(body))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"throttled", http.StatusTooManyRequests, ErrThrottled},
		{"server error", http.StatusInternalServerError, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Request-Id", "req-42")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			client, _ := newTestStack(t, srv.URL, freshBearer("tok-1"), &noopRefresher{})

			_, err := client.Do(context.Background(), http.MethodGet, "/content/summary", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "req-42", apiErr.RequestID)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestDo_TransientNetworkErrorSurfacedAsIs(t *testing.T) {
	// Unroutable address: the dial fails, and no retry is injected.
	client, _ := newTestStack(t, "http://127.0.0.1:0", freshBearer("tok-1"), &noopRefresher{})

	_, err := client.Do(context.Background(), http.MethodGet, "/content/summary", nil)
	require.Error(t, err)

	var apiErr *APIError

	assert.False(t, errors.As(err, &apiErr), "network errors must not be classified as API errors")
}

func TestDo_RefreshAndReplayOn401(t *testing.T) {
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		if r.Header.Get("Authorization") != "Bearer tok-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	stale := freshBearer("tok-stale")
	refresher := &noopRefresher{next: freshBearer("tok-fresh")}
	client, store := newTestStack(t, srv.URL, stale, refresher)

	refresher.store = store

	resp, err := client.Do(context.Background(), http.MethodGet, "/content/summary", nil)
	require.NoError(t, err)
	resp.Body.Close()

	// One failed attempt, one refresh, one successful replay.
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(2), requests.Load())
}

func TestDo_401OnReplaySurfacesWithoutSecondRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// The refresher "succeeds" but the server keeps rejecting: the replay's
	// 401 must surface instead of looping.
	refresher := &noopRefresher{}
	client, _ := newTestStack(t, srv.URL, freshBearer("tok-1"), refresher)

	_, err := client.Do(context.Background(), http.MethodGet, "/content/summary", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestDo_401OnAuthEndpointNeverRefreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	refresher := &noopRefresher{}
	client, _ := newTestStack(t, srv.URL, freshBearer("tok-1"), refresher)

	_, err := client.Do(context.Background(), http.MethodPost, "/auth/logout", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestDo_RefreshFailurePropagatedToCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	refreshErr := errors.New("refresh exchange failed")
	refresher := &noopRefresher{err: refreshErr}
	client, _ := newTestStack(t, srv.URL, freshBearer("tok-1"), refresher)

	_, err := client.Do(context.Background(), http.MethodGet, "/content/summary", nil)
	assert.ErrorIs(t, err, refreshErr)
}

// TestDo_ConcurrentExpiry_SingleRefreshExchange exercises the full stack:
// K requests fail with 401 concurrently, the coordinator runs exactly one
// refresh exchange against the server, and every request eventually
// succeeds on replay.
func TestDo_ConcurrentExpiry_SingleRefreshExchange(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)

		var req struct {
			RefreshToken string `json:"refresh_token"`
		}

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refresh-tok-stale", req.RefreshToken)

		// Hold the exchange open briefly so every 401 lands while the
		// flight is active.
		time.Sleep(100 * time.Millisecond)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "tok-fresh",
			"refresh_token":      "refresh-tok-fresh",
			"refresh_expires_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /content/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte(`{"total":10,"new_since_last_sync":2}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newHydratedStore(t, freshBearer("tok-stale"))
	creds := NewBearerCredentials(srv.URL, http.DefaultClient, slog.Default())
	coord := NewCoordinator(store, creds, slog.Default())
	client := NewClient(srv.URL, http.DefaultClient, store, creds, coord, slog.Default())

	const callers = 5

	var wg sync.WaitGroup

	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = client.FetchSummary(context.Background())
		}()
	}

	wg.Wait()

	for i := range callers {
		assert.NoError(t, errs[i])
	}

	assert.Equal(t, int32(1), refreshCalls.Load())

	got := store.Current()
	require.NotNil(t, got)
	assert.Equal(t, "tok-fresh", got.AccessToken)
}

func TestCookieCredentials_RefreshRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		// The refresh credential must arrive as a cookie, not a body.
		cookie, err := r.Cookie("osfeed_refresh")
		require.NoError(t, err)
		assert.Equal(t, "jar-refresh", cookie.Value)

		http.SetCookie(w, &http.Cookie{Name: "osfeed_access", Value: "jar-access-2"})
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	httpClient := &http.Client{Jar: jar}

	srvURL, err := url.Parse(srv.URL)
	require.NoError(t, err)

	jar.SetCookies(srvURL, []*http.Cookie{{Name: "osfeed_refresh", Value: "jar-refresh"}})

	creds := NewCookieCredentials(srv.URL, httpClient, slog.Default())

	sess, err := creds.Refresh(context.Background(), &session.Session{Mode: session.ModeCookie, Authenticated: true})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Authenticated)
	assert.Empty(t, sess.AccessToken, "cookie mode must not expose tokens in application state")

	// The jar picked up the rotated cookie.
	cookies := jar.Cookies(srvURL)
	names := make([]string, 0, len(cookies))

	for _, c := range cookies {
		names = append(names, c.Name)
	}

	assert.Contains(t, names, "osfeed_access")
}

func TestCookieCredentials_RefreshWithoutSessionShortCircuits(t *testing.T) {
	creds := NewCookieCredentials("http://127.0.0.1:0", http.DefaultClient, slog.Default())

	_, err := creds.Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestDoJSON_EncodesAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.IDs)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{"job_ids":["j1","j2"]}`))
	}))
	defer srv.Close()

	client, _ := newTestStack(t, srv.URL, freshBearer("tok-1"), &noopRefresher{})

	ids, err := client.SubmitResync(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j2"}, ids)
}
