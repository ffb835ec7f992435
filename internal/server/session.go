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

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the stdio transport's current session token. The credential
// cache stays keyed by token, so replacing the session never leaks another
// session's credentials.
type Session struct {
	mu    sync.RWMutex
	token string
}

// Set replaces the current session token.
func (s *Session) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Token returns the current session token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear forgets the current session token and returns the previous value so
// the caller can invalidate cached credentials.
func (s *Session) Clear() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.token
	s.token = ""
	return prev
}

// Active reports whether a session token is set.
func (s *Session) Active() bool {
	return s.Token() != ""
}

// TokenInfo is display metadata extracted from a JWT session token.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// inspectToken extracts display claims from a JWT without verifying its
// signature; verification is the credential authority's job. Opaque tokens
// return ok=false and are used as-is.
func inspectToken(token string) (TokenInfo, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, false
	}

	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, true
}
