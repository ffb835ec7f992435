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

package server

import "golang.org/x/time/rate"

// callLimiter bounds total tool calls per minute. Built-in auth tools are
// exempt; a caller must always be able to fix their session.
type callLimiter struct {
	limiter *rate.Limiter
}

// newCallLimiter allows callsPerMinute sustained calls with a burst of the
// same size. Zero or negative disables limiting.
func newCallLimiter(callsPerMinute int) *callLimiter {
	if callsPerMinute <= 0 {
		return &callLimiter{}
	}
	return &callLimiter{
		limiter: rate.NewLimiter(rate.Limit(callsPerMinute)/60.0, callsPerMinute),
	}
}

// Allow reports whether another call may proceed now.
func (c *callLimiter) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}
