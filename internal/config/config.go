// Package config loads gocoro settings from defaults, an optional YAML file
// and GOCORO_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/me/gocoro/pkg/coro"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOCORO_"

// Config holds scheduler and process settings.
type Config struct {
	TickLength     time.Duration `yaml:"tick_length"`
	SampleInterval time.Duration `yaml:"sample_interval,omitempty"` // 0 = half a tick
	KillOnSuccess  bool          `yaml:"kill_on_success"`
	Precision      string        `yaml:"precision"`  // float32 or float64
	Addr           string        `yaml:"addr"`       // Listen address for serve (default ":8080")
	LogLevel       string        `yaml:"log_level"`  // debug, info, warn, error
	LogFormat      string        `yaml:"log_format"` // text, json
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickLength:    coro.DefaultTickLength,
		KillOnSuccess: true,
		Precision:     "float64",
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then with the process environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from GOCORO_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	durations := map[string]*time.Duration{
		"TICK_LENGTH":     &c.TickLength,
		"SAMPLE_INTERVAL": &c.SampleInterval,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "KILL_ON_SUCCESS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sKILL_ON_SUCCESS: %w", EnvPrefix, err)
		}
		c.KillOnSuccess = b
	}

	strs := map[string]*string{
		"PRECISION":  &c.Precision,
		"ADDR":       &c.Addr,
		"LOG_LEVEL":  &c.LogLevel,
		"LOG_FORMAT": &c.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.TickLength <= 0 {
		return fmt.Errorf("tick_length must be positive, got %s", c.TickLength)
	}
	if c.SampleInterval < 0 {
		return fmt.Errorf("sample_interval must not be negative, got %s", c.SampleInterval)
	}
	switch c.Precision {
	case "float32", "float64":
	default:
		return fmt.Errorf("precision must be float32 or float64, got %q", c.Precision)
	}
	return nil
}

// SchedulerOptions converts c into scheduler options.
func (c Config) SchedulerOptions(logger *slog.Logger) []coro.Option {
	return []coro.Option{
		coro.WithTickLength(c.TickLength),
		coro.WithSampleInterval(c.SampleInterval),
		coro.WithKillOnSuccess(c.KillOnSuccess),
		coro.WithLogger(logger),
	}
}
