package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxcrop/internal/cropcanvas"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server: http://gpu-box:8000/
preset: square
save_directory: out
reconnect:
  initial_delay: 250ms
  max_attempts: 3
pulse: 1s
recaption:
  concurrency: 4
  replacements:
    ohwx man: "John Doe"
confirmations: false
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8000", cfg.Server)
	assert.Equal(t, cropcanvas.PresetSquare, cfg.preset())
	assert.True(t, filepath.IsAbs(cfg.SaveDirectory))
	assert.Equal(t, "out", filepath.Base(cfg.SaveDirectory))
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Pulse)
	assert.Equal(t, 150*time.Millisecond, cfg.GracePeriod)
	assert.Equal(t, 4, cfg.Recaption.Concurrency)
	assert.Equal(t, map[string]string{"ohwx man": "John Doe"}, cfg.Recaption.Replacements)
	assert.False(t, cfg.Confirmations)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigMissingDefaultFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Server)
	assert.Equal(t, cropcanvas.PresetWidescreen, cfg.preset())
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.True(t, cfg.Confirmations)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown preset", "preset: portrait\n"},
		{"empty server", "server: \"  \"\n"},
		{"bad duration", "pulse: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	cfg := &Config{Server: "http://localhost:8000", Preset: "wide"}
	require.NoError(t, cfg.normalize())
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 1, cfg.Recaption.Concurrency)
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, "", expandPath(""))
	assert.Equal(t, filepath.Join(home, "datasets"), expandPath("~/datasets"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
	assert.True(t, filepath.IsAbs(expandPath("relative")))
}

func TestGetSavePathCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	cfg := &Config{SaveDirectory: dir}

	path, err := cfg.GetSavePath("001.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "001.png"), path)
	assert.DirExists(t, dir)

	cfg.SaveDirectory = ""
	path, err = cfg.GetSavePath("001.png")
	require.NoError(t, err)
	assert.Equal(t, "001.png", path)
}
