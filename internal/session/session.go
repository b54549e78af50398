// Package session owns the client's authentication state: the persisted
// Session record, the Store that guards it, and the hydration lifecycle
// that gates all session reads at startup.
package session

import (
	"time"
)

// Mode selects the authentication transport the session was established with.
type Mode string

const (
	// ModeBearer carries explicit access/refresh tokens in application state.
	ModeBearer Mode = "bearer"
	// ModeCookie keeps credentials in httpOnly cookies; application state
	// records only that a session exists.
	ModeCookie Mode = "cookie"
)

// Session is the authentication state persisted across runs. A session is
// either fully populated for its mode or absent (nil) — never partial.
type Session struct {
	Mode             Mode      `json:"mode"`
	AccessToken      string    `json:"access_token,omitempty"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	Authenticated    bool      `json:"authenticated,omitempty"`
}

// Valid reports whether the session is fully populated for its mode.
// Store.Set rejects invalid sessions so a partially built session can
// never become the current one.
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}

	switch s.Mode {
	case ModeBearer:
		return s.AccessToken != "" && s.RefreshToken != ""
	case ModeCookie:
		return s.Authenticated
	default:
		return false
	}
}

// RefreshExpired reports whether the refresh credential itself has lapsed
// (bearer mode only). An expired refresh credential means the next refresh
// exchange is known to fail, so callers can short-circuit to logout.
func (s *Session) RefreshExpired(now time.Time) bool {
	if s == nil || s.Mode != ModeBearer {
		return false
	}

	return !s.RefreshExpiresAt.IsZero() && s.RefreshExpiresAt.Before(now)
}
