package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written on first login.
// All settings are present as commented-out defaults so users can discover
// every option without reading docs. This template is written once and
// never regenerated — user modifications are preserved by subsequent
// text-level edits.
const configTemplate = `# osfeed configuration
# Docs: https://github.com/maynetee/osfeed-go

# Base URL of the OSFeed API
# server_url = "https://api.osfeed.dev/v1"

# Credential transport: bearer or cookie
# auth_mode = "bearer"

# Background resync cadence for 'osfeed watch'
# poll_interval = "5m"

# Log verbosity: debug, info, warn, error
# log_level = "info"

# Override the session file location
# session_file = ""

# Override the state database location
# state_db = ""
`

// WriteDefault creates the config file from the template if it does not
// exist yet. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirPermissions); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), configFilePermissions); err != nil {
		return fmt.Errorf("config: writing default config: %w", err)
	}

	return nil
}

// Set updates a single top-level key in the config file with a text-level
// edit, preserving comments and unrelated lines. The file is created from
// the template when missing. Used by pause/resume to toggle the paused
// flag without rewriting the user's file.
func Set(path, key, value string) error {
	if err := WriteDefault(path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	newLine := fmt.Sprintf("%s = %s", key, formatTOMLValue(value))
	replaced := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Uncommented assignment to this key, possibly with trailing spaces.
		if strings.HasPrefix(trimmed, key) {
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, key))
			if strings.HasPrefix(rest, "=") {
				lines[i] = newLine
				replaced = true

				break
			}
		}
	}

	if !replaced {
		// Append at the end, after a separating blank line if needed.
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
			lines = append(lines, "")
		}

		lines = append(lines, newLine, "")
	}

	return atomicWrite(path, []byte(strings.Join(lines, "\n")))
}

// Unset removes a top-level key from the config file, if present.
func Unset(path, key string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	kept := lines[:0]

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, key) {
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, key))
			if strings.HasPrefix(rest, "=") {
				continue
			}
		}

		kept = append(kept, line)
	}

	return atomicWrite(path, []byte(strings.Join(kept, "\n")))
}

// formatTOMLValue quotes the value unless it is a boolean or number literal.
func formatTOMLValue(value string) string {
	switch value {
	case "true", "false":
		return value
	}

	return fmt.Sprintf("%q", value)
}

// atomicWrite replaces the file contents via temp-file-and-rename so a
// crash mid-write cannot truncate the config.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, configFilePermissions); err != nil {
		tmp.Close()
		return fmt.Errorf("config: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: writing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: renaming: %w", err)
	}

	success = true

	return nil
}
