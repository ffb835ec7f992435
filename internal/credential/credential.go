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

// Package credential resolves upstream API credentials from the credential
// authority and caches them per session.
//
// Credential values never appear in logs or tool results; callers log only
// token fingerprints via the log package.
package credential

import (
	"time"
)

// Credential is one resolved credential set for a session. Instances are
// shared between concurrent calls and must be treated as read-only.
type Credential struct {
	// Values maps credential names to secret values.
	Values map[string]string

	// FetchedAt is when the authority returned this set.
	FetchedAt time.Time
}

// Get returns the named credential value.
func (c *Credential) Get(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.Values[name]
	return v, ok
}

// Names returns the credential names present, for diagnostics. Values are
// never exposed this way.
func (c *Credential) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Values))
	for name := range c.Values {
		names = append(names, name)
	}
	return names
}
