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

// Package shared holds helpers used by every CLI command: version metadata,
// config loading with keychain fallback, and spec retrieval.
package shared

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tombee/apibridge/internal/catalog"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/secrets"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build metadata from main.
func SetVersion(v, c, d string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
	if d != "" {
		buildDate = d
	}
}

// GetVersion returns the recorded build metadata.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// LoadConfig loads service configuration and, when the gateway service key
// is not set by file or environment, falls back to the system keychain.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cfg.Auth.GatewayAPIKey == "" && cfg.Auth.GatewayURL != "" {
		if key, err := secrets.NewStore().GatewayKey(cfg.Service.Name); err == nil {
			cfg.Auth.GatewayAPIKey = key
		}
	}
	return cfg, nil
}

// maxSpecBytes bounds how large a fetched OpenAPI document may be.
const maxSpecBytes = 16 << 20

// FetchDocument downloads an OpenAPI document over HTTP.
func FetchDocument(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching spec: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching spec: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading spec: %w", err)
	}
	if len(data) > maxSpecBytes {
		return nil, fmt.Errorf("spec exceeds %d bytes", maxSpecBytes)
	}
	return data, nil
}

// LoadDescriptors resolves the OpenAPI document named by the configuration,
// preferring a local path and falling back to the configured URL.
func LoadDescriptors(cfg *config.Config) ([]catalog.OperationDescriptor, error) {
	if cfg.API.SpecPath != "" {
		if _, err := os.Stat(cfg.API.SpecPath); err == nil {
			return catalog.LoadDocument(cfg.API.SpecPath)
		} else if cfg.API.SpecURL == "" {
			return nil, fmt.Errorf("spec file %s not found; set api.spec_url or run 'apibridge spec fetch'", cfg.API.SpecPath)
		}
	}
	if cfg.API.SpecURL == "" {
		return nil, fmt.Errorf("no OpenAPI spec configured; set api.spec_path or api.spec_url")
	}

	data, err := FetchDocument(cfg.API.SpecURL)
	if err != nil {
		return nil, err
	}
	return catalog.ParseDocument(data)
}
