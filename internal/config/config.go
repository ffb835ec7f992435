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

// Package config loads the service configuration for apibridge.
//
// Configuration comes from a service.yaml file loaded once at startup, with
// environment variables taking precedence over file values. There is no hot
// reload; changing policies or credentials mappings requires a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// DefaultConfigPath is where Load looks when no path is given.
const DefaultConfigPath = "config/service.yaml"

// Config is the complete apibridge configuration.
type Config struct {
	Service    ServiceConfig      `yaml:"service"`
	API        APIConfig          `yaml:"api"`
	Auth       AuthConfig         `yaml:"auth"`
	Policies   []PolicyRule       `yaml:"policies,omitempty"`
	Validation ValidationConfig   `yaml:"validation,omitempty"`
	Limits     LimitsConfig       `yaml:"limits,omitempty"`
	Audit      AuditConfig        `yaml:"audit,omitempty"`
}

// ServiceConfig identifies the bridged service.
type ServiceConfig struct {
	// Name is the short machine name, used for the default tool prefix
	// and the default gateway endpoint.
	Name string `yaml:"name"`

	// DisplayName is the human-readable service name.
	DisplayName string `yaml:"display_name,omitempty"`

	// Description is served as the MCP server instructions.
	Description string `yaml:"description,omitempty"`
}

// APIConfig describes the upstream REST API.
type APIConfig struct {
	// BaseURL is the upstream API base URL (required).
	// Environment: API_BASE_URL
	BaseURL string `yaml:"base_url"`

	// SpecPath is the local path of the OpenAPI document.
	// Environment: OPENAPI_SPEC_PATH
	// Default: openapi/spec.json
	SpecPath string `yaml:"spec_path,omitempty"`

	// SpecURL is where `apibridge spec fetch` downloads the document from.
	// Environment: OPENAPI_SPEC_URL
	SpecURL string `yaml:"openapi_spec_url,omitempty"`

	// ToolPrefix prefixes every generated tool identity.
	// Environment: TOOL_PREFIX
	// Default: service.name
	ToolPrefix string `yaml:"tool_prefix,omitempty"`

	// Timeout bounds each upstream request.
	// Environment: API_TIMEOUT (seconds)
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CredentialMapping maps one credential issued by the authority onto the
// upstream request, either as a query parameter or as a header with an
// optional value prefix (e.g., "Bearer ").
type CredentialMapping struct {
	// Name is the credential key in the authority's response payload.
	Name string `yaml:"name"`

	// QueryParam injects the value as this query parameter, if set.
	QueryParam string `yaml:"query_param,omitempty"`

	// Header injects the value as this header, if set.
	Header string `yaml:"header,omitempty"`

	// Prefix is prepended to the value before injection.
	Prefix string `yaml:"prefix,omitempty"`
}

// AuthConfig configures the credential authority integration.
type AuthConfig struct {
	// GatewayURL is the credential authority base URL.
	// Environment: AUTH_GATEWAY_URL
	GatewayURL string `yaml:"gateway_url,omitempty"`

	// GatewayAPIKey authenticates this service to the authority.
	// Environment: AUTH_GATEWAY_API_KEY; falls back to the OS keyring
	// entry written by `apibridge auth set-key`. Never stored in YAML.
	GatewayAPIKey string `yaml:"-"`

	// GatewayEndpoint is the authority path exchanged for credentials.
	// Default: /credentials/{service.name}
	GatewayEndpoint string `yaml:"gateway_endpoint,omitempty"`

	// CacheTTL is how long fetched credentials stay valid in the cache
	// when the authority does not supply its own TTL.
	// Environment: AUTH_CREDENTIALS_CACHE_TTL (seconds)
	// Default: 1h
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`

	// Timeout bounds each authority request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Credentials maps authority-issued values onto upstream requests.
	Credentials []CredentialMapping `yaml:"credentials,omitempty"`
}

// PolicyRule is one ordered rule of the policy filter.
type PolicyRule struct {
	// Pattern matches the operation identity, exact or glob.
	Pattern string `yaml:"pattern"`

	// Action is one of "block", "confirm", "allow".
	Action string `yaml:"action"`

	// When is an optional boolean expression over the bound arguments;
	// the rule only matches when it evaluates to true.
	When string `yaml:"when,omitempty"`

	// Description explains the rule to a human asked to confirm.
	Description string `yaml:"description,omitempty"`
}

// ValidationConfig tunes argument validation.
type ValidationConfig struct {
	// MaxValueLength caps string argument lengths.
	// Default: 16384
	MaxValueLength int `yaml:"max_value_length,omitempty"`
}

// LimitsConfig bounds resource usage.
type LimitsConfig struct {
	// MaxResponseBytes truncates upstream response bodies.
	// Default: 1 MiB
	MaxResponseBytes int64 `yaml:"max_response_bytes,omitempty"`

	// CallsPerMinute rate-limits all tool calls.
	// Default: 120
	CallsPerMinute int `yaml:"calls_per_minute,omitempty"`
}

// AuditConfig configures the execution audit trail.
type AuditConfig struct {
	// Enabled turns on audit recording.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// Path is the SQLite database path; empty selects the default data-dir
	// path. A database that cannot be opened degrades to the in-memory
	// store at startup.
	Path string `yaml:"path,omitempty"`
}

// Load reads the configuration file at path (DefaultConfigPath when empty),
// applies environment overrides, fills defaults, and validates. A missing
// file is not an error; environment variables alone can configure a service.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env-only configuration.
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		c.Service.Name = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("OPENAPI_SPEC_PATH"); v != "" {
		c.API.SpecPath = v
	}
	if v := os.Getenv("OPENAPI_SPEC_URL"); v != "" {
		c.API.SpecURL = v
	}
	if v := os.Getenv("TOOL_PREFIX"); v != "" {
		c.API.ToolPrefix = v
	}
	if v := os.Getenv("API_TIMEOUT"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			c.API.Timeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("AUTH_GATEWAY_URL"); v != "" {
		c.Auth.GatewayURL = v
	}
	if v := os.Getenv("AUTH_GATEWAY_API_KEY"); v != "" {
		c.Auth.GatewayAPIKey = v
	}
	if v := os.Getenv("AUTH_GATEWAY_ENDPOINT"); v != "" {
		c.Auth.GatewayEndpoint = v
	}
	if v := os.Getenv("AUTH_CREDENTIALS_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Auth.CacheTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("AUDIT_DB_PATH"); v != "" {
		c.Audit.Path = v
	}
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "api"
	}
	if c.Service.DisplayName == "" {
		c.Service.DisplayName = c.Service.Name
	}
	if c.API.SpecPath == "" {
		c.API.SpecPath = "openapi/spec.json"
	}
	if c.API.ToolPrefix == "" {
		c.API.ToolPrefix = c.Service.Name
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.Auth.GatewayEndpoint == "" {
		c.Auth.GatewayEndpoint = "/credentials/" + c.Service.Name
	}
	if c.Auth.CacheTTL == 0 {
		c.Auth.CacheTTL = time.Hour
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = 30 * time.Second
	}
	if c.Validation.MaxValueLength == 0 {
		c.Validation.MaxValueLength = 16384
	}
	if c.Limits.MaxResponseBytes == 0 {
		c.Limits.MaxResponseBytes = 1 << 20
	}
	if c.Limits.CallsPerMinute == 0 {
		c.Limits.CallsPerMinute = 120
	}
	if c.Audit.Enabled == nil {
		enabled := true
		c.Audit.Enabled = &enabled
	}
}

// Validate checks the configuration for errors that must stop startup.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required (or set API_BASE_URL)", ErrInvalidConfig)
	}
	for i, rule := range c.Policies {
		if rule.Pattern == "" {
			return fmt.Errorf("%w: policies[%d]: pattern is required", ErrInvalidConfig, i)
		}
		switch rule.Action {
		case "block", "confirm", "allow":
		default:
			return fmt.Errorf("%w: policies[%d]: action must be block, confirm, or allow, got %q",
				ErrInvalidConfig, i, rule.Action)
		}
	}
	for i, m := range c.Auth.Credentials {
		if m.Name == "" {
			return fmt.Errorf("%w: auth.credentials[%d]: name is required", ErrInvalidConfig, i)
		}
		if m.QueryParam == "" && m.Header == "" {
			return fmt.Errorf("%w: auth.credentials[%d] (%s): either query_param or header is required",
				ErrInvalidConfig, i, m.Name)
		}
	}
	return nil
}

// AuditEnabled reports whether audit recording is on.
func (c *Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}
