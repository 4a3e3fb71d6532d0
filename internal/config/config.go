// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads flowctl's engine and CLI configuration: defaults,
// an optional config file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// Config is the complete flowctl configuration.
type Config struct {
	Version int `yaml:"version,omitempty" json:"version,omitempty"`

	Log    LogConfig    `yaml:"log" json:"log"`
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Providers maps a caller-chosen name to an LLM provider's connection
	// settings, resolved by pkg/llm.ClientRegistry at startup.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty"`

	// Tiers maps an abstract model tier ("fast", "balanced", "strategic") to
	// "provider/model", letting agent steps request a tier instead of a
	// concrete model name.
	Tiers map[string]string `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level     string `yaml:"level,omitempty" json:"level,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty" json:"add_source,omitempty"`
}

// EngineConfig holds engine-level settings (spec §4.7, §5). The fields are
// loaded and validated here; neither WorkflowRunner nor the CLI commands
// read them, so they have no effect on a run.
type EngineConfig struct {
	// DefaultMaxConcurrency is a default group concurrency. A Definition
	// that leaves parallel.defaultMaxConcurrency unset uses the package
	// constant workflow.DefaultParallelConcurrency, not this value.
	DefaultMaxConcurrency int `yaml:"default_max_concurrency,omitempty" json:"default_max_concurrency,omitempty"`

	// DefaultResources maps resource-pool names to capacities. Resource
	// pools a Definition does not size are not filled from it.
	DefaultResources map[string]int `yaml:"default_resources,omitempty" json:"default_resources,omitempty"`

	// ShutdownGracePeriod is a grace-period duration; ShutdownManager does
	// not take its grace period from it.
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period,omitempty" json:"shutdown_grace_period,omitempty"`

	// MetricsSnapshotInterval/Window are snapshot sampling durations;
	// MetricsCollector uses its own fixed defaults instead.
	MetricsSnapshotInterval time.Duration `yaml:"metrics_snapshot_interval,omitempty" json:"metrics_snapshot_interval,omitempty"`
	MetricsSnapshotWindow   time.Duration `yaml:"metrics_snapshot_window,omitempty" json:"metrics_snapshot_window,omitempty"`
}

// ProviderConfig configures one named LLM provider/client.
type ProviderConfig struct {
	Type      string `yaml:"type" json:"type"` // e.g. "bedrock"
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
}

// Default returns a Config with conservative, documented defaults. Load
// starts from it before applying a config file; the Engine values are not
// read by the runner (see EngineConfig).
func Default() *Config {
	return &Config{
		Version: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			DefaultMaxConcurrency:   4,
			ShutdownGracePeriod:     30 * time.Second,
			MetricsSnapshotInterval: time.Second,
			MetricsSnapshotWindow:   5 * time.Minute,
		},
	}
}

// Load builds a Config: defaults, then an optional file at configPath (or
// the XDG default location if configPath is empty and that file exists),
// then environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if defaultPath, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				configPath = defaultPath
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, &flowerrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to read %s", configPath), Cause: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &flowerrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to parse %s", configPath), Cause: err}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &flowerrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}
	return cfg, nil
}

// loadFromEnv overrides cfg fields from FLOWCTL_* environment variables,
// applied after file loading so the environment always wins.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("FLOWCTL_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWCTL_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWCTL_LOG_SOURCE"); v == "1" || v == "true" {
		c.Log.AddSource = true
	}
	if v := os.Getenv("FLOWCTL_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.DefaultMaxConcurrency = n
		}
	}
	if v := os.Getenv("FLOWCTL_SHUTDOWN_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.ShutdownGracePeriod = d
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Engine.DefaultMaxConcurrency <= 0 {
		return fmt.Errorf("engine.default_max_concurrency must be positive, got %d", c.Engine.DefaultMaxConcurrency)
	}
	for name, cap := range c.Engine.DefaultResources {
		if cap <= 0 {
			return fmt.Errorf("engine.default_resources[%s] must be positive, got %d", name, cap)
		}
	}
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("providers[%s].type is required", name)
		}
	}
	return nil
}
