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

// Package secrets stores the credential authority service key in the
// operating system keychain.
//
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
//
// The AUTH_GATEWAY_API_KEY environment variable always takes precedence
// over the keychain, so headless deployments never need one.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const keychainService = "apibridge"

var (
	// ErrNotFound indicates no key is stored for the service.
	ErrNotFound = errors.New("service key not found")

	// ErrUnavailable indicates the keychain is locked or inaccessible.
	ErrUnavailable = errors.New("keychain unavailable")
)

// Store reads and writes gateway service keys in the system keychain.
type Store struct {
	available bool
}

// NewStore probes keychain availability and returns a store. A locked or
// absent keychain yields a store whose operations fail with ErrUnavailable.
func NewStore() *Store {
	s := &Store{available: true}

	_, err := keyring.Get(keychainService, "__availability_probe__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		s.available = false
	}
	return s
}

// keyFor namespaces entries per configured service.
func keyFor(serviceName string) string {
	return "gateway-api-key/" + serviceName
}

// GatewayKey returns the stored service key for serviceName.
func (s *Store) GatewayKey(serviceName string) (string, error) {
	if !s.available {
		return "", fmt.Errorf("%w: keychain service inaccessible", ErrUnavailable)
	}

	value, err := keyring.Get(keychainService, keyFor(serviceName))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, serviceName)
		}
		if isUnavailableError(err) {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}
		return "", fmt.Errorf("keychain error: %w", err)
	}
	return value, nil
}

// SetGatewayKey stores the service key for serviceName.
func (s *Store) SetGatewayKey(serviceName, value string) error {
	if !s.available {
		return fmt.Errorf("%w: keychain service inaccessible", ErrUnavailable)
	}

	if err := keyring.Set(keychainService, keyFor(serviceName), value); err != nil {
		if isUnavailableError(err) {
			return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// DeleteGatewayKey removes the stored service key for serviceName.
func (s *Store) DeleteGatewayKey(serviceName string) error {
	if !s.available {
		return fmt.Errorf("%w: keychain service inaccessible", ErrUnavailable)
	}

	if err := keyring.Delete(keychainService, keyFor(serviceName)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, serviceName)
		}
		if isUnavailableError(err) {
			return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
		}
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// isUnavailableError checks if an error indicates the keychain is locked or
// inaccessible. Covers common messages across platforms.
func isUnavailableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	indicators := []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	}
	for _, indicator := range indicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
