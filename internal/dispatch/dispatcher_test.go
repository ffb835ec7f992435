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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tombee/apibridge/internal/binding"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/credential"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffFactor:     2.0,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

func newDispatcher(baseURL string, mappings []config.CredentialMapping) *Dispatcher {
	return New(
		config.APIConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		config.LimitsConfig{MaxResponseBytes: 1 << 20},
		mappings,
		nil,
	).WithRetry(fastRetry())
}

func boundGet(path string) *binding.BoundRequest {
	return &binding.BoundRequest{
		Method:  http.MethodGet,
		Path:    path,
		Query:   url.Values{},
		Headers: map[string]string{},
	}
}

func TestDispatchInjectsCredentials(t *testing.T) {
	var gotQuery url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	mappings := []config.CredentialMapping{
		{Name: "api_key", QueryParam: "key"},
		{Name: "api_token", QueryParam: "token"},
		{Name: "bearer", Header: "Authorization", Prefix: "Bearer "},
	}
	d := newDispatcher(srv.URL, mappings)

	cred := &credential.Credential{Values: map[string]string{
		"api_key":   "k-123",
		"api_token": "t-456",
		"bearer":    "b-789",
	}}

	bound := boundGet("/lists/abc/cards")
	bound.Query.Set("limit", "10")

	result, err := d.Dispatch(context.Background(), "trello_getcards", bound, cred)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d", result.StatusCode)
	}
	if gotQuery.Get("key") != "k-123" || gotQuery.Get("token") != "t-456" {
		t.Errorf("query credentials not injected: %v", gotQuery)
	}
	if gotQuery.Get("limit") != "10" {
		t.Errorf("bound query lost: %v", gotQuery)
	}
	if gotAuth != "Bearer b-789" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	// Injection must not leak back into the shared bound request.
	if bound.Query.Get("key") != "" {
		t.Error("bound request was mutated with a credential")
	}
	if result.RequestID == "" {
		t.Error("result should carry a request id")
	}
}

func TestDispatchSendsBody(t *testing.T) {
	var gotBody map[string]interface{}
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new"}`))
	}))
	defer srv.Close()

	d := newDispatcher(srv.URL, nil)
	bound := boundGet("/cards")
	bound.Method = http.MethodPost
	bound.Body = map[string]interface{}{"name": "new card"}

	result, err := d.Dispatch(context.Background(), "trello_createcard", bound, nil)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", result.StatusCode)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody["name"] != "new card" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d := newDispatcher(srv.URL, nil)
	result, err := d.Dispatch(context.Background(), "svc_get", boundGet("/x"), nil)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestDispatchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such list"}`))
	}))
	defer srv.Close()

	d := newDispatcher(srv.URL, nil)
	_, err := d.Dispatch(context.Background(), "svc_get", boundGet("/x"), nil)

	var dispErr *apierrors.DispatchError
	if !errors.As(err, &dispErr) {
		t.Fatalf("err = %v, want DispatchError", err)
	}
	if dispErr.Kind != apierrors.UpstreamError || dispErr.StatusCode != http.StatusNotFound {
		t.Errorf("got kind=%q status=%d", dispErr.Kind, dispErr.StatusCode)
	}
	if !strings.Contains(dispErr.Body, "no such list") {
		t.Errorf("body excerpt = %q", dispErr.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestDispatchUnauthorized(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := newDispatcher(srv.URL, nil)
	_, err := d.Dispatch(context.Background(), "svc_get", boundGet("/x"), nil)

	var dispErr *apierrors.DispatchError
	if !errors.As(err, &dispErr) {
		t.Fatalf("err = %v, want DispatchError", err)
	}
	if dispErr.Kind != apierrors.Unauthorized {
		t.Errorf("kind = %q, want unauthorized", dispErr.Kind)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("unauthorized should not be retried, called %d times", got)
	}
}

func TestDispatchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	d := newDispatcher(srv.URL, nil)
	_, err := d.Dispatch(context.Background(), "svc_get", boundGet("/x"), nil)

	var dispErr *apierrors.DispatchError
	if !errors.As(err, &dispErr) {
		t.Fatalf("err = %v, want DispatchError", err)
	}
	if dispErr.Kind != apierrors.Unreachable {
		t.Errorf("kind = %q, want unreachable", dispErr.Kind)
	}
}

func TestDispatchTruncatesResponse(t *testing.T) {
	payload := strings.Repeat("x", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	d := New(
		config.APIConfig{BaseURL: srv.URL, Timeout: time.Second},
		config.LimitsConfig{MaxResponseBytes: 64},
		nil, nil,
	).WithRetry(fastRetry())

	result, err := d.Dispatch(context.Background(), "svc_get", boundGet("/x"), nil)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if !result.Truncated {
		t.Error("oversized response should be marked truncated")
	}
	if len(result.Body) != 64 {
		t.Errorf("body length = %d, want 64", len(result.Body))
	}
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		limit         int64
		wantLen       int
		wantTruncated bool
	}{
		{"under limit", "abc", 10, 3, false},
		{"exactly at limit", strings.Repeat("x", 10), 10, 10, false},
		{"over limit", strings.Repeat("x", 11), 10, 10, true},
		{"zero limit reads all", strings.Repeat("x", 50), 0, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, truncated, err := readLimited(strings.NewReader(tt.input), tt.limit)
			if err != nil {
				t.Fatalf("readLimited() error: %v", err)
			}
			if len(data) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(data), tt.wantLen)
			}
			if truncated != tt.wantTruncated {
				t.Errorf("truncated = %v, want %v", truncated, tt.wantTruncated)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"negative seconds", "-5", 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	t.Run("http date", func(t *testing.T) {
		when := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
		got := parseRetryAfter(when)
		if got <= 0 || got > 10*time.Second {
			t.Errorf("parseRetryAfter(date) = %v", got)
		}
	})
}

func TestRetryConfigBackoff(t *testing.T) {
	c := &RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}

	for attempt, wantBase := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		5: time.Second, // capped
	} {
		got := c.backoff(attempt, 0)
		if got < wantBase || got > wantBase+110*time.Millisecond {
			t.Errorf("backoff(%d) = %v, want %v plus jitter", attempt, got, wantBase)
		}
	}

	t.Run("retry-after dominates", func(t *testing.T) {
		got := c.backoff(1, 500*time.Millisecond)
		if got < 500*time.Millisecond {
			t.Errorf("backoff = %v, want >= 500ms", got)
		}
	})

	t.Run("retry-after capped", func(t *testing.T) {
		got := c.backoff(1, time.Hour)
		if got > time.Second+110*time.Millisecond {
			t.Errorf("backoff = %v, want capped near 1s", got)
		}
	})
}
