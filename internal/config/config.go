// Package config handles the osfeed client configuration file: TOML
// parsing with strict unknown-key rejection, defaults, validation, and the
// line-level edits used by pause/resume.
package config

import (
	"fmt"
	"time"
)

// Auth transport modes.
const (
	AuthModeBearer = "bearer"
	AuthModeCookie = "cookie"
)

// Log levels accepted in the config file.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Config is the full client configuration.
type Config struct {
	// ServerURL is the base URL of the OSFeed API.
	ServerURL string `toml:"server_url"`

	// AuthMode selects the credential transport: "bearer" or "cookie".
	AuthMode string `toml:"auth_mode"`

	// PollInterval is the background resync cadence, as a Go duration
	// string (e.g. "5m").
	PollInterval string `toml:"poll_interval"`

	// Paused suspends background polling without stopping the daemon.
	// Toggled by the pause/resume commands; the daemon hot-reloads it.
	Paused bool `toml:"paused"`

	// PausedUntil optionally schedules automatic resume (RFC3339).
	PausedUntil string `toml:"paused_until"`

	// LogLevel is the baseline log verbosity: debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// SessionFile overrides the default session file location.
	SessionFile string `toml:"session_file"`

	// StateDB overrides the default state database location.
	StateDB string `toml:"state_db"`
}

// DefaultPollInterval is the resync cadence used when the config file does
// not set one.
const DefaultPollInterval = 5 * time.Minute

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:    "https://api.osfeed.dev/v1",
		AuthMode:     AuthModeBearer,
		PollInterval: DefaultPollInterval.String(),
		LogLevel:     "info",
	}
}

// Interval parses the configured poll cadence. Validate has already
// rejected malformed values, so errors here mean the Config skipped
// validation.
func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("config: parsing poll_interval %q: %w", c.PollInterval, err)
	}

	return d, nil
}

// EffectivePaused reports whether polling is currently paused, honoring a
// scheduled resume time: once paused_until passes, polling resumes without
// a config edit.
func (c *Config) EffectivePaused(now time.Time) bool {
	if !c.Paused {
		return false
	}

	if c.PausedUntil == "" {
		return true
	}

	until, err := time.Parse(time.RFC3339, c.PausedUntil)
	if err != nil {
		// Unparseable schedule: the explicit pause flag wins.
		return true
	}

	return now.Before(until)
}

// Validate checks a Config for consistency. Called by Load so a config file
// with bad values fails fast at startup rather than at first use.
func Validate(cfg *Config) error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}

	if cfg.AuthMode != AuthModeBearer && cfg.AuthMode != AuthModeCookie {
		return fmt.Errorf("auth_mode must be %q or %q, got %q", AuthModeBearer, AuthModeCookie, cfg.AuthMode)
	}

	d, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("poll_interval %q is not a valid duration: %w", cfg.PollInterval, err)
	}

	if d <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %q", cfg.PollInterval)
	}

	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", cfg.LogLevel)
	}

	if cfg.PausedUntil != "" {
		if _, err := time.Parse(time.RFC3339, cfg.PausedUntil); err != nil {
			return fmt.Errorf("paused_until %q is not RFC3339: %w", cfg.PausedUntil, err)
		}
	}

	return nil
}
