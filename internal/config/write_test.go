package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault_CreatesTemplateOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# osfeed configuration")

	// A second call must not clobber user edits.
	require.NoError(t, os.WriteFile(path, []byte("paused = true\n"), 0o644))
	require.NoError(t, WriteDefault(path))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "paused = true\n", string(data))
}

func TestSet_AppendsMissingKey(t *testing.T) {
	path := writeConfig(t, "server_url = \"https://feeds.example.com/v1\"\n")

	require.NoError(t, Set(path, "paused", "true"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)
	assert.Equal(t, "https://feeds.example.com/v1", cfg.ServerURL)
}

func TestSet_ReplacesExistingAssignment(t *testing.T) {
	path := writeConfig(t, "# cadence\npoll_interval = \"5m\"\npaused = true\n")

	require.NoError(t, Set(path, "poll_interval", "10m"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "# cadence", "comments must survive edits")
	assert.Contains(t, content, `poll_interval = "10m"`)
	assert.Equal(t, 1, strings.Count(content, "poll_interval"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10m", cfg.PollInterval)
	assert.True(t, cfg.Paused)
}

func TestSet_LeavesCommentedDefaultAlone(t *testing.T) {
	path := writeConfig(t, "# poll_interval = \"5m\"\n")

	require.NoError(t, Set(path, "poll_interval", "2m"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, `# poll_interval = "5m"`)
	assert.Contains(t, content, `poll_interval = "2m"`)
}

func TestSet_CreatesFileWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, Set(path, "paused", "true"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)
}

func TestUnset_RemovesKey(t *testing.T) {
	path := writeConfig(t, "paused = true\npaused_until = \"2026-02-01T12:00:00Z\"\n")

	require.NoError(t, Unset(path, "paused_until"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)
	assert.Empty(t, cfg.PausedUntil)
}

func TestUnset_MissingFileIsNoOp(t *testing.T) {
	assert.NoError(t, Unset(filepath.Join(t.TempDir(), "nope.toml"), "paused"))
}

func TestFormatTOMLValue(t *testing.T) {
	assert.Equal(t, "true", formatTOMLValue("true"))
	assert.Equal(t, "false", formatTOMLValue("false"))
	assert.Equal(t, `"10m"`, formatTOMLValue("10m"))
}
