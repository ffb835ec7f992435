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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// countingSource records how many fetches reach the authority.
type countingSource struct {
	fetches atomic.Int64
	delay   time.Duration
	err     error
}

func (s *countingSource) Fetch(ctx context.Context, sessionToken string) (*Credential, error) {
	s.fetches.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Credential{
		Values:    map[string]string{"api_key": "secret-for-" + sessionToken},
		FetchedAt: time.Now(),
	}, nil
}

func TestCacheHit(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src, time.Hour)

	for i := 0; i < 5; i++ {
		cred, err := cache.Get(context.Background(), "token-a")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if v, _ := cred.Get("api_key"); v != "secret-for-token-a" {
			t.Fatalf("api_key = %q", v)
		}
	}
	if got := src.fetches.Load(); got != 1 {
		t.Errorf("source fetched %d times, want 1", got)
	}
}

func TestCacheSessionsAreIndependent(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src, time.Hour)

	credA, _ := cache.Get(context.Background(), "token-a")
	credB, _ := cache.Get(context.Background(), "token-b")

	va, _ := credA.Get("api_key")
	vb, _ := credB.Get("api_key")
	if va == vb {
		t.Error("sessions should resolve distinct credentials")
	}
	if got := src.fetches.Load(); got != 2 {
		t.Errorf("source fetched %d times, want 2", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src, time.Minute)

	current := time.Unix(1000, 0)
	cache.now = func() time.Time { return current }

	if _, err := cache.Get(context.Background(), "token-a"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	current = current.Add(30 * time.Second)
	cache.Get(context.Background(), "token-a")
	if got := src.fetches.Load(); got != 1 {
		t.Fatalf("fetch before expiry should hit cache, fetched %d times", got)
	}

	current = current.Add(31 * time.Second)
	cache.Get(context.Background(), "token-a")
	if got := src.fetches.Load(); got != 2 {
		t.Errorf("fetch after expiry should refetch, fetched %d times", got)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	cache := NewCache(src, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), "token-a"); err != nil {
				t.Errorf("Get() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := src.fetches.Load(); got != 1 {
		t.Errorf("concurrent lookups fetched %d times, want 1", got)
	}
}

func TestCacheFailureNotCached(t *testing.T) {
	src := &countingSource{err: &apierrors.AuthError{
		Kind:    apierrors.GatewayUnreachable,
		Message: "down",
	}}
	cache := NewCache(src, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background(), "token-a")
		var authErr *apierrors.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("err = %v, want AuthError", err)
		}
	}
	if got := src.fetches.Load(); got != 3 {
		t.Errorf("failed fetches should not be cached, fetched %d times", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src, time.Hour)

	cache.Get(context.Background(), "token-a")
	cache.Invalidate("token-a")
	cache.Get(context.Background(), "token-a")

	if got := src.fetches.Load(); got != 2 {
		t.Errorf("invalidated entry should refetch, fetched %d times", got)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestCacheZeroTTLBypasses(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src, 0)

	cache.Get(context.Background(), "token-a")
	cache.Get(context.Background(), "token-a")

	if got := src.fetches.Load(); got != 2 {
		t.Errorf("zero TTL should bypass the cache, fetched %d times", got)
	}
}
