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

package dispatch

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig configures retry behavior for upstream dispatch.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first
	// (default: 3)
	MaxAttempts int

	// InitialBackoff is the first retry delay (default: 1s)
	InitialBackoff time.Duration

	// MaxBackoff caps any single delay, Retry-After included (default: 30s)
	MaxBackoff time.Duration

	// BackoffFactor is the exponential multiplier (default: 2.0)
	BackoffFactor float64

	// RetryableStatuses lists upstream status codes worth retrying
	// Default: [408, 429, 500, 502, 503, 504]
	RetryableStatuses []int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffFactor:     2.0,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

// IsRetryableStatus reports whether the status code should be retried.
func (c *RetryConfig) IsRetryableStatus(statusCode int) bool {
	for _, code := range c.RetryableStatuses {
		if code == statusCode {
			return true
		}
	}
	return false
}

// backoff calculates the delay before the given retry attempt.
//
// Formula: min(InitialBackoff * BackoffFactor^(attempt-1), MaxBackoff),
// raised to the upstream's Retry-After when larger, plus 0-100ms jitter.
func (c *RetryConfig) backoff(attempt int, retryAfter time.Duration) time.Duration {
	base := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		base *= c.BackoffFactor
	}
	if base > float64(c.MaxBackoff) {
		base = float64(c.MaxBackoff)
	}

	delay := time.Duration(base)
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > c.MaxBackoff {
		delay = c.MaxBackoff
	}

	jitter := time.Duration(rand.Int63n(101)) * time.Millisecond
	return delay + jitter
}

// parseRetryAfter interprets an upstream Retry-After header. Supports both
// delta-seconds and HTTP-date forms; malformed values are ignored.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	delay := time.Until(when)
	if delay < 0 {
		return 0
	}
	return delay
}
