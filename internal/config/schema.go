package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Posture  Posture        `yaml:"posture"`
	Probe    ProbeOverride  `yaml:"probe,omitempty"`
	Retry    RetryConfig    `yaml:"retry"`
	AI       AIConfig       `yaml:"ai"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ProbeOverride allows overriding posture defaults for the host prober.
// Nil fields fall back to the posture profile.
type ProbeOverride struct {
	RangeStart      *int         `yaml:"range_start,omitempty"`
	RangeEnd        *int         `yaml:"range_end,omitempty"`
	Concurrency     *int         `yaml:"concurrency,omitempty"`
	Timeout         *Duration    `yaml:"timeout,omitempty"`
	FanOutThreshold *int         `yaml:"fan_out_threshold,omitempty"` // 0 disables the virtual switch
	FastFailLatency *Duration    `yaml:"fast_fail_latency,omitempty"`
	Retry           *RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig describes a backoff policy
type RetryConfig struct {
	Retries      int      `yaml:"retries"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay,omitempty"` // 0 = no ceiling
}

// AIConfig selects the assistant backend. The key itself is normally read from
// the environment variable named by APIKeyEnv.
type AIConfig struct {
	Offline   bool   `yaml:"offline"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// MonitorConfig controls periodic re-probing of watched scans
type MonitorConfig struct {
	Interval Duration `yaml:"interval"` // 0 disables the background loop
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
