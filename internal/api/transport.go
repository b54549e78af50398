package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maynetee/osfeed-go/internal/session"
)

// refreshTimeout bounds a single credential-refresh exchange. The exchange
// runs detached from any one caller's context, so it needs its own bound.
const refreshTimeout = 30 * time.Second

// Credentials is the authentication transport strategy: how credentials are
// attached to outgoing requests and how the refresh exchange works. The two
// implementations (bearer tokens, httpOnly cookies) share the Coordinator
// state machine.
type Credentials interface {
	// Apply decorates an outgoing request with the given session's
	// credentials. Called at dispatch time, never at queue time, so a
	// replayed request picks up refreshed credentials.
	Apply(req *http.Request, sess *session.Session)

	// Refresh performs one credential-refresh exchange and returns the
	// replacement session. It must not route through Client — auth
	// endpoints never re-enter the refresh path.
	Refresh(ctx context.Context, sess *session.Session) (*session.Session, error)

	// Login performs the credential bootstrap exchange.
	Login(ctx context.Context, email, password string) (*session.Session, error)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// BearerCredentials is the explicit-token transport: the session carries an
// access/refresh token pair and every request gets an Authorization header.
type BearerCredentials struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBearerCredentials creates the bearer-token transport strategy.
func NewBearerCredentials(baseURL string, httpClient *http.Client, logger *slog.Logger) *BearerCredentials {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &BearerCredentials{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

func (b *BearerCredentials) Apply(req *http.Request, sess *session.Session) {
	if sess != nil && sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}
}

// Refresh exchanges the refresh token for a new token pair. With no refresh
// credential at hand the exchange is known to fail, so it short-circuits
// without a network call.
func (b *BearerCredentials) Refresh(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if sess == nil || sess.RefreshToken == "" {
		return nil, fmt.Errorf("refresh requires a refresh token: %w", ErrNotLoggedIn)
	}

	var out refreshResponse
	if err := postAuthJSON(ctx, b.httpClient, b.baseURL+"/auth/refresh", refreshRequest{RefreshToken: sess.RefreshToken}, &out); err != nil {
		return nil, err
	}

	b.logger.Debug("refresh exchange succeeded",
		slog.Time("refresh_expires_at", out.RefreshExpiresAt),
	)

	return &session.Session{
		Mode:             session.ModeBearer,
		AccessToken:      out.AccessToken,
		RefreshToken:     out.RefreshToken,
		RefreshExpiresAt: out.RefreshExpiresAt,
	}, nil
}

func (b *BearerCredentials) Login(ctx context.Context, email, password string) (*session.Session, error) {
	var out refreshResponse
	if err := postAuthJSON(ctx, b.httpClient, b.baseURL+"/auth/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}

	return &session.Session{
		Mode:             session.ModeBearer,
		AccessToken:      out.AccessToken,
		RefreshToken:     out.RefreshToken,
		RefreshExpiresAt: out.RefreshExpiresAt,
	}, nil
}

// CookieCredentials is the opaque-cookie transport: credentials travel as
// httpOnly cookies in the http.Client's jar and never appear in application
// state. The session records only that authentication exists.
type CookieCredentials struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCookieCredentials creates the cookie transport strategy. The passed
// http.Client must carry a cookie jar; the same client must be shared with
// api.Client so business requests see the refreshed cookies.
func NewCookieCredentials(baseURL string, httpClient *http.Client, logger *slog.Logger) *CookieCredentials {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &CookieCredentials{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// Apply is a no-op: the cookie jar attaches credentials automatically.
func (c *CookieCredentials) Apply(_ *http.Request, _ *session.Session) {}

// Refresh calls the refresh endpoint with an empty body. The refresh cookie
// rides along via the jar and the response sets replacement cookies.
func (c *CookieCredentials) Refresh(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if sess == nil {
		return nil, fmt.Errorf("refresh requires an authenticated session: %w", ErrNotLoggedIn)
	}

	if err := postAuthJSON(ctx, c.httpClient, c.baseURL+"/auth/refresh", nil, nil); err != nil {
		return nil, err
	}

	c.logger.Debug("cookie refresh succeeded")

	return &session.Session{Mode: session.ModeCookie, Authenticated: true}, nil
}

func (c *CookieCredentials) Login(ctx context.Context, email, password string) (*session.Session, error) {
	if err := postAuthJSON(ctx, c.httpClient, c.baseURL+"/auth/login", loginRequest{Email: email, Password: password}, nil); err != nil {
		return nil, err
	}

	return &session.Session{Mode: session.ModeCookie, Authenticated: true}, nil
}

// postAuthJSON issues a POST against an auth endpoint, bypassing Client so
// auth failures here surface directly instead of re-entering the refresh
// path. in may be nil (empty body); out may be nil (response body ignored).
func postAuthJSON(ctx context.Context, httpClient *http.Client, url string, in, out any) error {
	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("api: creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, readErr := io.ReadAll(resp.Body)
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

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding response: %w", err)
	}

	return nil
}
