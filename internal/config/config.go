// Package config provides configuration management for netsketch.
//
// Config is an explicit value handed to constructors. Nothing in the process
// reads configuration from package state.
//
// Config file locations (priority order):
//  1. $NETSKETCH_CONFIG
//  2. ./netsketch.yaml
//  3. $XDG_CONFIG_HOME/netsketch/config.yaml
//  4. ~/.config/netsketch/config.yaml
//  5. /etc/netsketch/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netsketch/internal/adapter"
	"netsketch/internal/retry"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Server:   ServerConfig{Addr: ":3000"},
		Database: DatabaseConfig{Path: "./netsketch.db"},
		Log:      LogConfig{Level: "info"},
		Posture:  PostureBalanced,
		Retry: RetryConfig{
			Retries:      3,
			InitialDelay: Duration(2000 * time.Millisecond),
		},
		AI: AIConfig{
			APIKeyEnv: "GEMINI_API_KEY",
			Model:     adapter.DefaultModel,
		},
		Monitor: MonitorConfig{Interval: Duration(5 * time.Minute)},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Version == 0 {
		c.Version = d.Version
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = d.AI.APIKeyEnv
	}
	if c.AI.Model == "" {
		c.AI.Model = d.AI.Model
	}
}

// EffectiveProbe returns the prober settings with overrides applied
func (c *Config) EffectiveProbe() adapter.ProberConfig {
	base := c.Posture.GetProfile()
	o := c.Probe

	if o.RangeStart != nil {
		base.RangeStart = *o.RangeStart
	}
	if o.RangeEnd != nil {
		base.RangeEnd = *o.RangeEnd
	}
	if o.Concurrency != nil {
		base.Concurrency = *o.Concurrency
	}
	if o.Timeout != nil {
		base.Timeout = o.Timeout.Duration()
	}
	if o.FanOutThreshold != nil {
		base.FanOutThreshold = *o.FanOutThreshold
	}
	if o.FastFailLatency != nil {
		base.FastFailLatency = o.FastFailLatency.Duration()
	}
	if o.Retry != nil {
		base.Retry = o.Retry.Policy()
	}

	return base
}

// Policy converts the YAML form into a retry policy
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Retries:      r.Retries,
		InitialDelay: r.InitialDelay.Duration(),
		MaxDelay:     r.MaxDelay.Duration(),
	}
}

// AssistantConfig resolves the assistant settings. An inline api_key wins over
// the environment variable.
func (c *Config) AssistantConfig() adapter.AssistantConfig {
	key := c.AI.APIKey
	if key == "" && c.AI.APIKeyEnv != "" {
		key = os.Getenv(c.AI.APIKeyEnv)
	}
	return adapter.AssistantConfig{
		Offline: c.AI.Offline,
		APIKey:  key,
		Model:   c.AI.Model,
		Retry:   c.Retry.Policy(),
	}
}

// Validate rejects settings the prober or retry loop cannot honour
func (c *Config) Validate() error {
	var errs []error
	p := c.EffectiveProbe()

	if p.RangeStart < 1 || p.RangeStart > 254 {
		errs = append(errs, fmt.Errorf("probe.range_start %d outside 1..254", p.RangeStart))
	}
	if p.RangeEnd < 1 || p.RangeEnd > 254 {
		errs = append(errs, fmt.Errorf("probe.range_end %d outside 1..254", p.RangeEnd))
	}
	if p.RangeStart > p.RangeEnd {
		errs = append(errs, fmt.Errorf("probe.range_start %d after range_end %d", p.RangeStart, p.RangeEnd))
	}
	if p.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("probe.concurrency must be at least 1"))
	}
	if p.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("probe.timeout must be positive"))
	}
	if p.FanOutThreshold < 0 {
		errs = append(errs, fmt.Errorf("probe.fan_out_threshold must not be negative"))
	}
	if p.Retry.Retries < 0 || c.Retry.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative"))
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delays must not be negative"))
	}
	if c.Monitor.Interval < 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must not be negative"))
	}

	return errors.Join(errs...)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	p := c.EffectiveProbe()
	ai := "gemini:" + c.AI.Model
	if c.AI.Offline {
		ai = "offline"
	}

	summary := fmt.Sprintf("Posture: %s, AI: %s\n", c.Posture, ai)
	summary += fmt.Sprintf("Probe: hosts %d-%d, concurrency %d, timeout %s, fan-out %d",
		p.RangeStart, p.RangeEnd, p.Concurrency, p.Timeout, p.FanOutThreshold)
	return summary
}
