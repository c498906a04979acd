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

package connector

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/ratelimit"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/risk"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/transport"
)

// Config is the connector's complete configuration, supplied by the host at
// construction. Immutable after New.
type Config struct {
	// BaseURL is the provider's base URL (required).
	BaseURL string `yaml:"base_url"`

	// APIToken is the bearer credential (required). A secret: it is passed
	// through to the transport and never logged or echoed.
	APIToken string `yaml:"api_token"`

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent overrides the connector's User-Agent header.
	UserAgent string `yaml:"user_agent"`

	// TLSInsecure disables TLS certificate validation. Development only.
	TLSInsecure bool `yaml:"tls_insecure"`

	// Retry tunes the transport retry policy.
	Retry RetryConfig `yaml:"retry"`

	// RateLimit bounds the shared request budget. Zero values disable
	// client-side rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// PageSize is the inventory list page size (default: 200).
	PageSize int `yaml:"page_size"`

	// MaxPages caps pages per sync cycle (default: 10000).
	MaxPages int `yaml:"max_pages"`

	// MaxConcurrentActions bounds parallel membership calls (default: 4).
	MaxConcurrentActions int `yaml:"max_concurrent_actions"`

	// StatePath is the SQLite state database path. Empty selects the
	// per-user default; ":memory:" keeps state for the process lifetime only.
	StatePath string `yaml:"state_path"`

	// RiskBands maps score ranges to tier groups. Required for PushRiskScore,
	// optional otherwise.
	RiskBands risk.Bands `yaml:"risk_bands"`
}

// RetryConfig mirrors the transport retry policy in configuration form.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// RateLimitConfig bounds the shared provider request budget.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.transportConfig().Validate(); err != nil {
		return err
	}

	if err := c.rateLimitConfig().Validate(); err != nil {
		return err
	}

	if c.PageSize < 0 {
		return fmt.Errorf("page_size must be non-negative, got %d", c.PageSize)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must be non-negative, got %d", c.MaxPages)
	}
	if c.MaxConcurrentActions < 0 {
		return fmt.Errorf("max_concurrent_actions must be non-negative, got %d", c.MaxConcurrentActions)
	}

	if len(c.RiskBands) > 0 {
		if err := c.RiskBands.Validate(); err != nil {
			return fmt.Errorf("invalid risk_bands: %w", err)
		}
	}

	return nil
}

// transportConfig maps the configuration into the transport layer's form.
func (c *Config) transportConfig() *transport.Config {
	cfg := &transport.Config{
		BaseURL:     c.BaseURL,
		APIToken:    c.APIToken,
		Timeout:     c.Timeout,
		UserAgent:   c.UserAgent,
		TLSInsecure: c.TLSInsecure,
	}
	if c.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if c.Retry != (RetryConfig{}) {
		// Zero means "use the default"; everything else maps verbatim, so
		// invalid values (negatives, factor below 1) reach the transport's
		// retry validation instead of being silently replaced.
		retry := transport.DefaultRetryConfig()
		if c.Retry.MaxAttempts != 0 {
			retry.MaxAttempts = c.Retry.MaxAttempts
		}
		if c.Retry.InitialBackoff != 0 {
			retry.InitialBackoff = c.Retry.InitialBackoff
		}
		if c.Retry.MaxBackoff != 0 {
			retry.MaxBackoff = c.Retry.MaxBackoff
		}
		if c.Retry.BackoffFactor != 0 {
			retry.BackoffFactor = c.Retry.BackoffFactor
		}
		cfg.Retry = retry
	}
	return cfg
}

// rateLimitConfig maps the configuration into the admission bucket's form.
func (c *Config) rateLimitConfig() *ratelimit.Config {
	return &ratelimit.Config{
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.Burst,
	}
}
