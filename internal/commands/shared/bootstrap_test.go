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

package shared

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/secrets"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigKeychainFallback(t *testing.T) {
	keyring.MockInit()
	t.Setenv("AUTH_GATEWAY_API_KEY", "")

	store := secrets.NewStore()
	require.NoError(t, store.SetGatewayKey("acme", "keychain-key"))

	path := writeConfig(t, `
service:
  name: acme
api:
  base_url: https://api.acme.test
auth:
  gateway_url: https://auth.acme.test
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "keychain-key", cfg.Auth.GatewayAPIKey)
}

func TestLoadConfigEnvWinsOverKeychain(t *testing.T) {
	keyring.MockInit()
	t.Setenv("AUTH_GATEWAY_API_KEY", "env-key")

	store := secrets.NewStore()
	require.NoError(t, store.SetGatewayKey("acme", "keychain-key"))

	path := writeConfig(t, `
service:
  name: acme
api:
  base_url: https://api.acme.test
auth:
  gateway_url: https://auth.acme.test
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Auth.GatewayAPIKey)
}

func TestLoadConfigNoGatewaySkipsKeychain(t *testing.T) {
	keyring.MockInit()
	t.Setenv("AUTH_GATEWAY_API_KEY", "")

	path := writeConfig(t, `
service:
  name: acme
api:
  base_url: https://api.acme.test
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.GatewayAPIKey)
}

func TestFetchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"openapi":"3.0.0"}`))
	}))
	defer srv.Close()

	data, err := FetchDocument(srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"openapi":"3.0.0"}`, string(data))
}

func TestFetchDocumentBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchDocument(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLoadDescriptorsMissingSpec(t *testing.T) {
	cfg := &config.Config{}
	cfg.API.SpecPath = filepath.Join(t.TempDir(), "absent.json")

	_, err := LoadDescriptors(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spec fetch")
}
