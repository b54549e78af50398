package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/maynetee/osfeed-go/internal/session"
)

const userAgent = "osfeed-go/0.1"

// Refresher recovers from authentication expiry. stale is the session the
// failing request was dispatched with. Defined at the consumer per Go
// convention "accept interfaces, return structs"; Coordinator is the real
// implementation.
type Refresher interface {
	Refresh(ctx context.Context, stale *session.Session) error
}

// Client is the single HTTP entry point for the OSFeed API. It attaches
// credentials at dispatch time, classifies failures, and recovers from
// authentication expiry through the Refresher — transparently to the
// caller when the refresh succeeds.
//
// Client injects no retries for transient network errors; those surface
// as-is. The only replay it performs is the one post-refresh retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	creds      Credentials
	refresher  Refresher
	logger     *slog.Logger
}

// NewClient creates an OSFeed API client. In cookie mode, httpClient must be
// the same jar-carrying client handed to the Credentials strategy.
func NewClient(
	baseURL string,
	httpClient *http.Client,
	store *session.Store,
	creds Credentials,
	refresher Refresher,
	logger *slog.Logger,
) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		store:      store,
		creds:      creds,
		refresher:  refresher,
		logger:     logger,
	}
}

// Do executes an HTTP request against the API. The path is appended to the
// client's base URL. The body, if any, is buffered so the request can be
// replayed after a credential refresh. The caller must close the response
// body on success.
//
// A 401 on a non-auth endpoint triggers one refresh-and-replay cycle; a 401
// on the replay, or on an auth endpoint, surfaces immediately so expiry can
// never loop.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	// Session reads must not race hydration.
	sess, err := c.store.Await(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch(ctx, sess, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !isAuthPath(path) {
		drainBody(resp)

		c.logger.Debug("authentication expired, entering refresh",
			slog.String("method", method),
			slog.String("path", path),
		)

		if refreshErr := c.refresher.Refresh(ctx, sess); refreshErr != nil {
			return nil, refreshErr
		}

		// Replay once, with credentials re-read so the replay carries the
		// refreshed session.
		resp, err = c.dispatch(ctx, c.store.Current(), method, path, body)
		if err != nil {
			return nil, err
		}
	}

	// 2xx — success.
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	return nil, responseError(resp)
}

// DoJSON executes a request with a JSON body and decodes a JSON response.
// in may be nil (no body); out may be nil (response body discarded).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding request: %w", err)
		}

		body = data
	}

	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s response: %w", path, err)
	}

	return nil
}

// dispatch executes a single HTTP attempt with the given session's
// credentials. Callers read the session at dispatch time, never earlier.
func (c *Client) dispatch(ctx context.Context, sess *session.Session, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	c.creds.Apply(req, sess)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}

	return resp, nil
}

// isAuthPath reports whether the path is a credential or session-bootstrap
// endpoint. Failures on these surface immediately — a 401 from the refresh
// endpoint itself must never trigger another refresh.
func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}

// responseError reads the response body and builds the classified error.
// Consumes and closes the body.
func responseError(resp *http.Response) error {
	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// drainBody discards and closes a response body so the connection can be
// reused for the replay.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
