// Package config loads hdrreg settings from a YAML file.
//
// Values in the file are merged over Default() and the file is validated
// against the #Config schema before decoding, so a typo or an out of range
// value fails loudly instead of silently falling back to a default.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hdrreg/internal/header"
	"github.com/roach88/hdrreg/internal/recordstore"
	"github.com/roach88/hdrreg/internal/schema"
)

// Config is the full settings tree.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
	Journal  JournalConfig  `yaml:"journal"`
}

// RegistryConfig mirrors header.Config.
type RegistryConfig struct {
	MaxBytes       int64 `yaml:"max_bytes"`
	InitialVersion int64 `yaml:"initial_version"`
	Debug          bool  `yaml:"debug"`
}

// RetryConfig controls recordstore retries after OutOfMemory.
type RetryConfig struct {
	MaxRetries uint64   `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
}

// LogConfig selects the slog level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// JournalConfig locates the SQLite journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Duration is a time.Duration written as "5ms" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration back in string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  Duration(time.Millisecond),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path and merges it over Default(). An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Parse(path, data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse validates data and decodes it over cfg. name is used in errors.
func Parse(name string, data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := schema.ValidateYAML(schema.Config, name, data); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Header returns the registry configuration.
func (c Config) Header(logger *slog.Logger) header.Config {
	return header.Config{
		MaxBytes:       c.Registry.MaxBytes,
		InitialVersion: header.Version(c.Registry.InitialVersion),
		Debug:          c.Registry.Debug,
		Logger:         logger,
	}
}

// Manager returns recordstore options. reclaimer may be nil.
func (c Config) Manager(logger *slog.Logger, reclaimer recordstore.Reclaimer) recordstore.Options {
	return recordstore.Options{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  time.Duration(c.Retry.BaseDelay),
		Reclaimer:  reclaimer,
		Logger:     logger,
	}
}

// Level maps the configured level name to a slog level. Unknown names
// fall back to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
