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

// Package dispatch executes bound requests against the upstream service.
//
// The dispatcher injects session credentials at the last possible moment,
// retries transient upstream failures with exponential backoff, and caps
// response bodies to a configured byte ceiling. Shared inputs (bound
// request, credential set) are never mutated.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/apibridge/internal/binding"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/credential"
	"github.com/tombee/apibridge/internal/log"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// errorBodyLimit caps how much upstream error body is carried in details.
const errorBodyLimit = 2048

// Result is a successful upstream response.
type Result struct {
	// StatusCode is the upstream 2xx status.
	StatusCode int

	// Body is the response body, possibly truncated.
	Body []byte

	// Truncated reports whether Body was cut at the byte ceiling.
	Truncated bool

	// RequestID identifies this dispatch in logs and audit records.
	RequestID string

	// Attempts is how many attempts the dispatch took.
	Attempts int
}

// Dispatcher executes bound requests against one upstream service.
type Dispatcher struct {
	baseURL          string
	client           *http.Client
	retry            *RetryConfig
	mappings         []config.CredentialMapping
	maxResponseBytes int64
	logger           *slog.Logger
}

// New builds a dispatcher for the configured upstream.
func New(api config.APIConfig, limits config.LimitsConfig, mappings []config.CredentialMapping, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		baseURL:          strings.TrimRight(api.BaseURL, "/"),
		client:           &http.Client{Timeout: api.Timeout},
		retry:            DefaultRetryConfig(),
		mappings:         mappings,
		maxResponseBytes: limits.MaxResponseBytes,
		logger:           logger,
	}
}

// WithRetry replaces the retry configuration. Intended for tests and for
// callers that need tighter bounds than the default.
func (d *Dispatcher) WithRetry(retry *RetryConfig) *Dispatcher {
	d.retry = retry
	return d
}

// Dispatch executes one bound request. The credential set may be nil when
// the operation needs no credentials. A 401 or 403 from the upstream is
// reported as Unauthorized so the caller can invalidate the session's
// cached credentials.
func (d *Dispatcher) Dispatch(ctx context.Context, identity string, bound *binding.BoundRequest, cred *credential.Credential) (*Result, error) {
	requestID := uuid.NewString()

	body, contentType, err := encodeBody(bound.Body)
	if err != nil {
		return nil, &apierrors.DispatchError{
			Kind:      apierrors.UpstreamError,
			Identity:  identity,
			RequestID: requestID,
			Cause:     fmt.Errorf("encoding request body: %w", err),
		}
	}

	target, err := d.buildURL(bound, cred)
	if err != nil {
		return nil, &apierrors.DispatchError{
			Kind:      apierrors.UpstreamError,
			Identity:  identity,
			RequestID: requestID,
			Cause:     err,
		}
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		result, err := d.attempt(ctx, identity, requestID, target, contentType, body, bound, cred)
		if err == nil {
			result.Attempts = attempt
			d.observe(bound.Method, result.StatusCode, start)
			return result, nil
		}
		lastErr = err

		retryable, retryAfter := retryDecision(err, d.retry)
		if !retryable || attempt >= d.retry.MaxAttempts {
			break
		}

		if d.logger != nil {
			d.logger.Debug("retrying upstream request",
				slog.String(log.OperationKey, identity),
				slog.String(log.RequestIDKey, requestID),
				slog.Int("attempt", attempt),
			)
		}
		retriesTotal.WithLabelValues(identity).Inc()

		select {
		case <-time.After(d.retry.backoff(attempt, retryAfter)):
		case <-ctx.Done():
			return nil, &apierrors.DispatchError{
				Kind:      apierrors.Unreachable,
				Identity:  identity,
				RequestID: requestID,
				Cause:     ctx.Err(),
			}
		}
	}

	d.observeError(bound.Method, lastErr, start)
	return nil, lastErr
}

// attempt executes a single upstream request.
func (d *Dispatcher) attempt(ctx context.Context, identity, requestID, target, contentType string, body []byte, bound *binding.BoundRequest, cred *credential.Credential) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, bound.Method, target, reader)
	if err != nil {
		return nil, &apierrors.DispatchError{
			Kind:      apierrors.UpstreamError,
			Identity:  identity,
			RequestID: requestID,
			Cause:     err,
		}
	}

	for name, value := range bound.Headers {
		req.Header.Set(name, value)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	d.injectHeaders(req, cred)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &apierrors.DispatchError{
			Kind:      apierrors.Unreachable,
			Identity:  identity,
			RequestID: requestID,
			Cause:     redactURLError(err),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &apierrors.DispatchError{
			Kind:       apierrors.Unauthorized,
			Identity:   identity,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
			RequestID:  requestID,
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		dispErr := &apierrors.DispatchError{
			Kind:       apierrors.UpstreamError,
			Identity:   identity,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
			RequestID:  requestID,
		}
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			dispErr.RetryAfter = ra
		}
		return nil, dispErr
	}

	data, truncated, err := readLimited(resp.Body, d.maxResponseBytes)
	if err != nil {
		return nil, &apierrors.DispatchError{
			Kind:      apierrors.Unreachable,
			Identity:  identity,
			RequestID: requestID,
			Cause:     err,
		}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       data,
		Truncated:  truncated,
		RequestID:  requestID,
	}, nil
}

// buildURL joins base URL, bound path, bound query, and query credentials.
func (d *Dispatcher) buildURL(bound *binding.BoundRequest, cred *credential.Credential) (string, error) {
	u, err := url.Parse(d.baseURL + bound.Path)
	if err != nil {
		return "", fmt.Errorf("building upstream URL: %w", err)
	}

	// Copy so query credentials never leak back into the bound request.
	query := u.Query()
	for name, values := range bound.Query {
		for _, v := range values {
			query.Add(name, v)
		}
	}
	for _, m := range d.mappings {
		if m.QueryParam == "" {
			continue
		}
		if v, ok := cred.Get(m.Name); ok {
			query.Set(m.QueryParam, v)
		}
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// injectHeaders adds header-carried credentials to the outgoing request.
func (d *Dispatcher) injectHeaders(req *http.Request, cred *credential.Credential) {
	for _, m := range d.mappings {
		if m.Header == "" {
			continue
		}
		if v, ok := cred.Get(m.Name); ok {
			req.Header.Set(m.Header, m.Prefix+v)
		}
	}
}

// retryDecision classifies a dispatch error for the retry loop.
func retryDecision(err error, retry *RetryConfig) (bool, time.Duration) {
	var dispErr *apierrors.DispatchError
	if !errors.As(err, &dispErr) {
		return false, 0
	}

	switch dispErr.Kind {
	case apierrors.Unreachable:
		// Connection failures and timeouts are worth retrying unless the
		// caller already gave up.
		if errors.Is(dispErr.Cause, context.Canceled) || errors.Is(dispErr.Cause, context.DeadlineExceeded) {
			return false, 0
		}
		return true, 0
	case apierrors.UpstreamError:
		if retry.IsRetryableStatus(dispErr.StatusCode) {
			return true, dispErr.RetryAfter
		}
	}
	return false, 0
}

// encodeBody marshals a body argument for the wire. Strings pass through
// unchanged so callers can send pre-encoded payloads.
func encodeBody(body interface{}) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(v), "application/json", nil
	case []byte:
		return v, "application/json", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

// readLimited reads at most limit bytes, reporting whether the body was cut.
// Zero limit disables the cap.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// readErrorBody captures a bounded prefix of an upstream error body.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, errorBodyLimit))
	if err != nil {
		return ""
	}
	return string(data)
}

// redactURLError strips query strings from transport errors. Query-carried
// credentials must never reach logs or tool results.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil && u.RawQuery != "" {
			u.RawQuery = ""
			return fmt.Errorf("%s %s: %w", urlErr.Op, u.String(), unwrapNet(urlErr.Err))
		}
	}
	return err
}

func unwrapNet(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	return err
}
