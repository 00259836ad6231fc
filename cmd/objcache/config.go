package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	"objcache/internal/cache"
)

// demoConfig is the YAML shape read by -config. Durations use Go syntax
// ("250ms", "2s").
type demoConfig struct {
	Capacity      int           `yaml:"capacity"`
	Buckets       int           `yaml:"buckets"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	TrimBatchSize int           `yaml:"trim_batch_size"`

	Workers  int           `yaml:"workers"`
	Keys     int           `yaml:"keys"`
	Duration time.Duration `yaml:"duration"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

func defaultDemoConfig() demoConfig {
	return demoConfig{
		Capacity:      32,
		Buckets:       64,
		IdleTimeout:   200 * time.Millisecond,
		SweepInterval: 100 * time.Millisecond,
		TrimBatchSize: 16,
		Workers:       8,
		Keys:          128,
		Duration:      2 * time.Second,
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

// loadDemoConfig overlays the file at path on the defaults. An empty path
// returns the defaults unchanged.
func loadDemoConfig(path string) (demoConfig, error) {
	cfg := defaultDemoConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WithContext(
			errors.Wrap(err, errors.CodeNotFound, "failed to read config file"),
			"path", path,
		)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config file"),
			"path", path,
		)
	}
	return cfg, cfg.validate()
}

func (c demoConfig) validate() error {
	if c.Workers <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "workers must be positive, got %d", c.Workers)
	}
	if c.Keys <= 0 {
		return errors.Newf(errors.CodeInvalidConfig, "keys must be positive, got %d", c.Keys)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.cacheConfig(nil).Validate()
}

func (c demoConfig) cacheConfig(logger *slog.Logger) cache.Config {
	return cache.Config{
		Capacity:      c.Capacity,
		Buckets:       c.Buckets,
		IdleTimeout:   c.IdleTimeout,
		SweepInterval: c.SweepInterval,
		TrimBatchSize: c.TrimBatchSize,
		Logger:        logger,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return lvl, errors.Wrapf(err, errors.CodeInvalidConfig, "invalid log level %q", s)
	}
	return lvl, nil
}

func newLogger(c demoConfig) *slog.Logger {
	lvl, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: lvl}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
