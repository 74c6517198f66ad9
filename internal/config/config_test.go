package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrreg/internal/header"
	"github.com/roach88/hdrreg/internal/schema"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hdrreg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
registry:
  max_bytes: 2048
  initial_version: 10
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(2048), cfg.Registry.MaxBytes)
	assert.Equal(t, int64(10), cfg.Registry.InitialVersion)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, uint64(3), cfg.Retry.MaxRetries)
	assert.Equal(t, Duration(time.Millisecond), cfg.Retry.BaseDelay)
}

func TestLoad_Duration(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_retries: 7
  base_delay: 250us
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Microsecond, time.Duration(cfg.Retry.BaseDelay))
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_SchemaViolation(t *testing.T) {
	_, err := Load(writeConfig(t, `
registry:
  max_byte: 10
`))
	require.Error(t, err)

	var verr *schema.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestConfig_Header(t *testing.T) {
	cfg := Default()
	cfg.Registry = RegistryConfig{MaxBytes: 99, InitialVersion: -3, Debug: true}
	logger := slog.Default()

	hc := cfg.Header(logger)
	assert.Equal(t, header.Config{
		MaxBytes:       99,
		InitialVersion: header.Version(-3),
		Debug:          true,
		Logger:         logger,
	}, hc)
}

func TestConfig_Manager(t *testing.T) {
	cfg := Default()
	opts := cfg.Manager(nil, nil)
	assert.Equal(t, uint64(3), opts.MaxRetries)
	assert.Equal(t, time.Millisecond, opts.BaseDelay)
	assert.Nil(t, opts.Reclaimer)
}

func TestConfig_Level(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range tests {
		cfg := Config{Log: LogConfig{Level: name}}
		assert.Equal(t, want, cfg.Level(), "level %q", name)
	}
}
