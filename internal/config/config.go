// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the apisentry server.
// It handles loading and parsing YAML configuration files, and provides
// structured access to application settings including server bind address,
// the reasoning backend, the remediation backend, probe definitions, and the
// permission catalog.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces. Use "127.0.0.1" for local-only access.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables or disables debug-level logging and other debug features.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for rotating log files when LoggingToFile is set.
	LogDir string `yaml:"log-dir" json:"-"`

	// DBPath is the SQLite database file holding the healing attempt ledger.
	DBPath string `yaml:"db-path" json:"-"`

	// Reasoning configures the best-effort AI reasoning backend.
	Reasoning ReasoningConfig `yaml:"reasoning" json:"reasoning"`

	// Remedy configures the remediation backend used to apply fixes.
	Remedy RemedyConfig `yaml:"remedy" json:"remedy"`

	// Healing configures the self-healing pipeline.
	Healing HealingConfig `yaml:"healing" json:"healing"`

	// Probes lists the registered API health checks.
	Probes []ProbeConfig `yaml:"probes" json:"probes"`

	// Catalog maps endpoint path prefixes to required permission names.
	// Merged over the built-in default table; longest prefix wins.
	Catalog map[string][]string `yaml:"catalog" json:"catalog"`
}

// ReasoningConfig holds settings for the OpenAI-compatible reasoning backend.
// The backend is optional: an empty BaseURL disables it and every judgement
// falls through to the deterministic classifier.
type ReasoningConfig struct {
	// BaseURL is the OpenAI-compatible endpoint, e.g. "http://127.0.0.1:11434/v1".
	BaseURL string `yaml:"base-url" json:"base-url"`
	// APIKey authenticates against the backend. Overridden by APISENTRY_REASONING_API_KEY.
	APIKey string `yaml:"api-key" json:"-"`
	// Model is the model identifier sent with each request.
	Model string `yaml:"model" json:"model"`
	// TimeoutSeconds bounds a single reasoning call. Expiry is a handled failure.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`
}

// Timeout returns the per-call timeout as a duration.
func (r ReasoningConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// RemedyConfig holds settings for the credential-issuing remediation backend.
type RemedyConfig struct {
	// BaseURL is the remediation API root, e.g. "https://api.cloudflare.com/client/v4".
	BaseURL string `yaml:"base-url" json:"base-url"`
	// APIToken authenticates remediation calls. Overridden by APISENTRY_REMEDY_API_TOKEN.
	APIToken string `yaml:"api-token" json:"-"`
	// AccountID scopes issued credentials.
	AccountID string `yaml:"account-id" json:"account-id"`
	// TimeoutSeconds bounds a single remediation call.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`
}

// Timeout returns the per-call timeout as a duration.
func (r RemedyConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// HealingConfig tunes the healing attempt controller.
type HealingConfig struct {
	// MaxConcurrentAttempts bounds how many attempts in one batch run in parallel.
	MaxConcurrentAttempts int `yaml:"max-concurrent-attempts" json:"max-concurrent-attempts"`
}

// ProbeConfig describes one registered API health check.
type ProbeConfig struct {
	// Name is the human-readable test name.
	Name string `yaml:"name" json:"name"`
	// Endpoint is the request path relative to the probed API root.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Method is the HTTP method; defaults to GET.
	Method string `yaml:"method" json:"method"`
	// ExpectStatus is the status code treated as healthy; defaults to 200.
	ExpectStatus int `yaml:"expect-status" json:"expect-status"`
	// Body is an optional request body for POST/PUT checks.
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
}

// LoadConfig reads a YAML configuration file and applies environment
// overrides for secrets. A missing file is an error; use DefaultConfig for
// embedded defaults.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", configFile, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", configFile, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with development defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Port:   8317,
		DBPath: "apisentry.db",
		LogDir: "logs",
		Healing: HealingConfig{
			MaxConcurrentAttempts: 4,
		},
		Reasoning: ReasoningConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Remedy: RemedyConfig{
			TimeoutSeconds: 30,
		},
	}
}

// applyEnvOverrides lets deployments keep secrets out of the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("APISENTRY_REASONING_API_KEY"); v != "" {
		c.Reasoning.APIKey = v
	}
	if v := os.Getenv("APISENTRY_REMEDY_API_TOKEN"); v != "" {
		c.Remedy.APIToken = v
	}
	if v := os.Getenv("APISENTRY_REMEDY_ACCOUNT_ID"); v != "" {
		c.Remedy.AccountID = v
	}
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db-path cannot be empty")
	}
	if c.Healing.MaxConcurrentAttempts <= 0 {
		c.Healing.MaxConcurrentAttempts = 1
	}
	for i, p := range c.Probes {
		if p.Name == "" {
			return fmt.Errorf("config: probe %d has no name", i)
		}
		if p.Endpoint == "" {
			return fmt.Errorf("config: probe %q has no endpoint", p.Name)
		}
	}
	return nil
}
