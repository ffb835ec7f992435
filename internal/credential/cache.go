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

package credential

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a session-keyed credential cache with lazy TTL expiry.
//
// Concurrent lookups for the same session collapse into a single authority
// fetch. Failed fetches are never cached; every call after a failure retries
// the authority.
type Cache struct {
	source Source
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group

	// now is swappable for expiry tests.
	now func() time.Time
}

type cacheEntry struct {
	cred      *Credential
	expiresAt time.Time
}

// NewCache wraps a source with a TTL cache. A zero ttl disables caching
// entirely; every lookup hits the source.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the session's credential set, fetching it from the source if
// the cache has no fresh entry. Concurrent callers for the same session
// share one in-flight fetch and its result.
func (c *Cache) Get(ctx context.Context, sessionToken string) (*Credential, error) {
	if c.ttl > 0 {
		c.mu.Lock()
		entry, ok := c.entries[sessionToken]
		if ok && c.now().Before(entry.expiresAt) {
			c.mu.Unlock()
			cacheLookups.WithLabelValues("hit").Inc()
			return entry.cred, nil
		}
		if ok {
			// Expired entries are removed lazily on access.
			delete(c.entries, sessionToken)
		}
		c.mu.Unlock()
	}
	cacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(sessionToken, func() (interface{}, error) {
		cred, err := c.source.Fetch(ctx, sessionToken)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[sessionToken] = cacheEntry{
				cred:      cred,
				expiresAt: c.now().Add(c.ttl),
			}
			c.mu.Unlock()
		}
		return cred, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// Invalidate drops the session's cached entry. Used on logout and when the
// upstream rejects the injected credential.
func (c *Cache) Invalidate(sessionToken string) {
	c.mu.Lock()
	delete(c.entries, sessionToken)
	c.mu.Unlock()
	c.group.Forget(sessionToken)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of cached sessions, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
