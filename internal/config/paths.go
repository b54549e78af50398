package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "osfeed"

// Config file name.
const configFileName = "config.toml"

// DefaultConfigPath returns the full path of the config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/osfeed).
// On macOS, uses ~/Library/Application Support/osfeed per Apple guidelines.
// Other platforms fall back to ~/.config/osfeed.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_CONFIG_HOME", ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (session file, state database).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/osfeed).
// On macOS, config and data share one directory per platform convention.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_DATA_HOME", filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// linuxDir resolves an XDG base directory, honoring the env override.
func linuxDir(home, envVar, fallback string) string {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// SessionPath returns the effective session file path for the config.
func (c *Config) SessionPath() string {
	if c.SessionFile != "" {
		return c.SessionFile
	}

	return filepath.Join(DefaultDataDir(), "session.json")
}

// StateDBPath returns the effective state database path for the config.
func (c *Config) StateDBPath() string {
	if c.StateDB != "" {
		return c.StateDB
	}

	return filepath.Join(DefaultDataDir(), "state.db")
}
