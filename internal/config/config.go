// Package config holds the collector's runtime configuration and the
// resolution rules for where values come from. Precedence, highest first:
// explicit CLI flags, GNBMON_* environment variables, an optional YAML
// config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Input format selectors.
const (
	FormatOAI    = "oai"
	FormatSRSRAN = "srsran"
)

// Delivery send-order selectors for one-at-a-time mode.
const (
	OrderLatest = "latest"
	OrderFIFO   = "fifo"
)

// Config is the full runtime configuration of the collector.
type Config struct {
	// Input is the path to the gNB log file to read.
	Input string `yaml:"input"`
	// Output is the NDJSON sink destination; "-" or empty means stdout.
	Output string `yaml:"output"`
	// Once processes the available input and exits instead of following.
	Once bool `yaml:"once"`
	// Format selects the log format: "oai" or "srsran".
	Format string `yaml:"format"`

	// PostURL enables HTTP delivery of snapshots when non-empty.
	PostURL string `yaml:"post_url"`
	// SendInterval is the minimum spacing between successful sends.
	SendInterval time.Duration `yaml:"-"`
	// PostTimeout bounds each HTTP attempt.
	PostTimeout time.Duration `yaml:"-"`
	// MaxRetries caps retry attempts on transient delivery failures.
	MaxRetries int `yaml:"max_retries"`
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `yaml:"-"`
	// Batch sends the whole buffer as one array instead of one snapshot
	// per interval.
	Batch bool `yaml:"batch"`
	// SendOrder picks which snapshot goes first in one-at-a-time mode:
	// "latest" (drop older) or "fifo".
	SendOrder string `yaml:"send_order"`

	// CSVPath enables the tabular sink when non-empty.
	CSVPath string `yaml:"csv"`
	// Source tags every emitted snapshot.
	Source string `yaml:"source"`

	// StatusAddr serves the status API when non-empty (e.g. ":8090").
	StatusAddr string `yaml:"status_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration, matching the collector's
// documented defaults.
func Default() Config {
	return Config{
		Input:        "gnb_log",
		Output:       "-",
		Format:       FormatOAI,
		SendInterval: time.Second,
		PostTimeout:  5 * time.Second,
		MaxRetries:   3,
		BackoffBase:  500 * time.Millisecond,
		SendOrder:    OrderLatest,
		Source:       "OAI",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input path must not be empty")
	}
	if c.Format != FormatOAI && c.Format != FormatSRSRAN {
		return fmt.Errorf("unknown input format %q", c.Format)
	}
	if c.SendOrder != OrderLatest && c.SendOrder != OrderFIFO {
		return fmt.Errorf("unknown send order %q", c.SendOrder)
	}
	if c.SendInterval <= 0 {
		return fmt.Errorf("send interval must be positive, got %s", c.SendInterval)
	}
	if c.PostTimeout <= 0 {
		return fmt.Errorf("post timeout must be positive, got %s", c.PostTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be positive, got %s", c.BackoffBase)
	}
	return nil
}

// fileConfig mirrors Config for YAML decoding; durations are strings so
// the file can say "1s" or "500ms".
type fileConfig struct {
	Config       `yaml:",inline"`
	SendInterval string `yaml:"send_interval"`
	PostTimeout  string `yaml:"post_timeout"`
	BackoffBase  string `yaml:"backoff_base"`
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file leave the existing value untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*cfg = fc.Config
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.SendInterval, &cfg.SendInterval},
		{fc.PostTimeout, &cfg.PostTimeout},
		{fc.BackoffBase, &cfg.BackoffBase},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse duration %q in %s: %w", d.raw, path, err)
		}
		*d.dst = v
	}
	return nil
}

// ApplyEnv overlays GNBMON_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	for _, s := range []struct {
		key string
		dst *string
	}{
		{"GNBMON_INPUT", &cfg.Input},
		{"GNBMON_OUTPUT", &cfg.Output},
		{"GNBMON_FORMAT", &cfg.Format},
		{"GNBMON_POST_URL", &cfg.PostURL},
		{"GNBMON_SEND_ORDER", &cfg.SendOrder},
		{"GNBMON_CSV", &cfg.CSVPath},
		{"GNBMON_SOURCE", &cfg.Source},
		{"GNBMON_STATUS_ADDR", &cfg.StatusAddr},
		{"GNBMON_LOG_LEVEL", &cfg.LogLevel},
		{"GNBMON_LOG_FORMAT", &cfg.LogFormat},
	} {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"GNBMON_ONCE", &cfg.Once},
		{"GNBMON_BATCH", &cfg.Batch},
	} {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s=%q: %w", b.key, v, err)
			}
			*b.dst = parsed
		}
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"GNBMON_SEND_INTERVAL", &cfg.SendInterval},
		{"GNBMON_POST_TIMEOUT", &cfg.PostTimeout},
		{"GNBMON_BACKOFF_BASE", &cfg.BackoffBase},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s=%q: %w", d.key, v, err)
			}
			*d.dst = parsed
		}
	}
	if v := os.Getenv("GNBMON_MAX_RETRIES"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GNBMON_MAX_RETRIES=%q: %w", v, err)
		}
		cfg.MaxRetries = parsed
	}
	return nil
}
