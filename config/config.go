// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the bridge server
// and client.
//
// Loading order is deterministic: built-in defaults, then an optional
// YAML file (--config flag), then environment variables. Environment
// always wins, so a deployment can override a shared config file
// without editing it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the bridge server.
type ServerConfig struct {
	// Port is the TCP listen port. Environment: BRIDGE_PORT.
	Port int `yaml:"port"`

	// APIKey is the shared bearer secret. Required. Environment:
	// BRIDGE_API_KEY.
	APIKey string `yaml:"api_key"`

	// WorkingDir is the base directory under which per-caller working
	// directories are created. Caller-supplied working_dir values
	// resolve beneath it. Environment: BRIDGE_WORKING_DIR.
	WorkingDir string `yaml:"working_dir"`

	// TimeoutSeconds is the hard wall-clock bound on one execution.
	// Environment: BRIDGE_TIMEOUT.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// RateLimit is the number of requests admitted per caller per
	// window. Environment: BRIDGE_RATE_LIMIT.
	RateLimit int `yaml:"rate_limit"`

	// RateWindowSeconds is the fixed rate-limit window length.
	// Environment: BRIDGE_RATE_WINDOW.
	RateWindowSeconds int `yaml:"rate_window_seconds"`

	// AllowedAdmins is the caller allowlist. Empty means any
	// authenticated caller. Environment: BRIDGE_ALLOWED_ADMINS
	// (comma-separated).
	AllowedAdmins []int64 `yaml:"allowed_admins"`

	// SessionTTL is how long a stored session stays resumable, as a
	// Go duration string. "0" disables expiry. Environment:
	// BRIDGE_SESSION_TTL.
	SessionTTL string `yaml:"session_ttl"`

	// EvictionInterval is how often idle rate windows and expired
	// sessions are swept. Environment: BRIDGE_EVICTION_INTERVAL.
	EvictionInterval string `yaml:"eviction_interval"`

	// ClaudeBinary is the executor binary. Environment: CLAUDE_BINARY,
	// matching the executable's own convention.
	ClaudeBinary string `yaml:"claude_binary"`
}

// ClientConfig configures the bridge client.
type ClientConfig struct {
	// URL is the bridge server base URL. Required. Environment:
	// BRIDGE_URL.
	URL string `yaml:"url"`

	// APIKey is the shared bearer secret. Required. Environment:
	// BRIDGE_API_KEY.
	APIKey string `yaml:"api_key"`

	// TimeoutSeconds mirrors the server's execution timeout. The
	// client's HTTP timeout is this plus a network margin, so it
	// never gives up before the server can finish. Environment:
	// BRIDGE_TIMEOUT.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DefaultServer returns the server defaults: port 9999, 300-second
// execution timeout, 10 requests per 60-second window, 24-hour
// session TTL, 5-minute eviction sweep.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:              9999,
		WorkingDir:        "/tmp/claudebot",
		TimeoutSeconds:    300,
		RateLimit:         10,
		RateWindowSeconds: 60,
		SessionTTL:        "24h",
		EvictionInterval:  "5m",
		ClaudeBinary:      "claude",
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() ClientConfig {
	return ClientConfig{
		TimeoutSeconds: 300,
	}
}

// LoadServer builds the server configuration: defaults, then the YAML
// file at path (skipped when path is empty), then environment
// variables.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServer()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ServerConfig{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvironment(); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClient builds the client configuration: defaults, then the YAML
// file at path (skipped when path is empty), then environment
// variables.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClient()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ClientConfig{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvironment(); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c *ServerConfig) applyEnvironment() error {
	var errs []error

	if value := os.Getenv("BRIDGE_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_PORT: %w", err))
		} else {
			c.Port = port
		}
	}
	if value := os.Getenv("BRIDGE_API_KEY"); value != "" {
		c.APIKey = value
	}
	if value := os.Getenv("BRIDGE_WORKING_DIR"); value != "" {
		c.WorkingDir = value
	}
	if value := os.Getenv("BRIDGE_TIMEOUT"); value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_TIMEOUT: %w", err))
		} else {
			c.TimeoutSeconds = seconds
		}
	}
	if value := os.Getenv("BRIDGE_RATE_LIMIT"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_RATE_LIMIT: %w", err))
		} else {
			c.RateLimit = limit
		}
	}
	if value := os.Getenv("BRIDGE_RATE_WINDOW"); value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_RATE_WINDOW: %w", err))
		} else {
			c.RateWindowSeconds = seconds
		}
	}
	if value, present := os.LookupEnv("BRIDGE_ALLOWED_ADMINS"); present {
		admins, err := ParseAdminList(value)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.AllowedAdmins = admins
		}
	}
	if value := os.Getenv("BRIDGE_SESSION_TTL"); value != "" {
		c.SessionTTL = value
	}
	if value := os.Getenv("BRIDGE_EVICTION_INTERVAL"); value != "" {
		c.EvictionInterval = value
	}
	if value := os.Getenv("CLAUDE_BINARY"); value != "" {
		c.ClaudeBinary = value
	}

	return errors.Join(errs...)
}

func (c *ClientConfig) applyEnvironment() error {
	var errs []error

	if value := os.Getenv("BRIDGE_URL"); value != "" {
		c.URL = value
	}
	if value := os.Getenv("BRIDGE_API_KEY"); value != "" {
		c.APIKey = value
	}
	if value := os.Getenv("BRIDGE_TIMEOUT"); value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_TIMEOUT: %w", err))
		} else {
			c.TimeoutSeconds = seconds
		}
	}

	return errors.Join(errs...)
}

// ParseAdminList parses a comma-separated caller identity list.
// Whitespace around entries is ignored; empty entries are skipped.
// A malformed entry is an error rather than silently dropped — a
// typo in the allowlist must not widen access.
func ParseAdminList(value string) ([]int64, error) {
	var admins []int64
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("BRIDGE_ALLOWED_ADMINS: invalid caller id %q", field)
		}
		admins = append(admins, id)
	}
	return admins, nil
}

// Validate checks the server configuration for errors.
func (c ServerConfig) Validate() error {
	var errs []error

	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("api_key is required (BRIDGE_API_KEY)"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be positive"))
	}
	if c.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit must be positive"))
	}
	if c.RateWindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("rate_window_seconds must be positive"))
	}
	if c.WorkingDir == "" {
		errs = append(errs, fmt.Errorf("working_dir is required"))
	}
	if c.ClaudeBinary == "" {
		errs = append(errs, fmt.Errorf("claude_binary is required"))
	}
	if _, err := c.SessionTTLDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.EvictionIntervalDuration(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate checks the client configuration for errors.
func (c ClientConfig) Validate() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, fmt.Errorf("url is required (BRIDGE_URL)"))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("api_key is required (BRIDGE_API_KEY)"))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be positive"))
	}

	return errors.Join(errs...)
}

// Timeout returns the execution timeout as a duration.
func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateWindow returns the rate-limit window as a duration.
func (c ServerConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// SessionTTLDuration parses the session TTL. "0" (or empty) means no
// expiry.
func (c ServerConfig) SessionTTLDuration() (time.Duration, error) {
	if c.SessionTTL == "" || c.SessionTTL == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("session_ttl: %w", err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("session_ttl must not be negative")
	}
	return ttl, nil
}

// EvictionIntervalDuration parses the eviction sweep interval.
func (c ServerConfig) EvictionIntervalDuration() (time.Duration, error) {
	interval, err := time.ParseDuration(c.EvictionInterval)
	if err != nil {
		return 0, fmt.Errorf("eviction_interval: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("eviction_interval must be positive")
	}
	return interval, nil
}

// Timeout returns the client's expectation of the server execution
// timeout as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
