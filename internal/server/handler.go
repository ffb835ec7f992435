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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/apibridge/internal/audit"
	"github.com/tombee/apibridge/internal/catalog"
	"github.com/tombee/apibridge/internal/credential"
	"github.com/tombee/apibridge/internal/dispatch"
	"github.com/tombee/apibridge/internal/log"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// errorPayload is the structured error surface returned to tool callers.
type errorPayload struct {
	ErrorKind string                 `json:"errorKind"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleOperation runs the full pipeline for one catalog operation call.
func (s *Server) handleOperation(ctx context.Context, def *catalog.OperationDefinition, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	args := request.GetArguments()

	if !s.limiter.Allow() {
		return errorResult(&errorPayload{
			ErrorKind: "rate_limited",
			Message:   "too many calls, slow down and retry",
		}), nil
	}

	bound, err := s.binder.Bind(def, args)
	if err != nil {
		return s.failure(ctx, def.Identity, "", args, start, err), nil
	}

	if err := s.policies.Check(def.Identity, args, bound.Confirmed); err != nil {
		return s.failure(ctx, def.Identity, "", args, start, err), nil
	}

	cred, err := s.resolveCredentials(ctx)
	if err != nil {
		return s.failure(ctx, def.Identity, "", args, start, err), nil
	}

	result, err := s.dispatcher.Dispatch(ctx, def.Identity, bound, cred)
	if err != nil {
		var dispErr *apierrors.DispatchError
		if errors.As(err, &dispErr) && dispErr.Kind == apierrors.Unauthorized && s.cache != nil {
			// Stale credentials; the next call refetches from the authority.
			s.cache.Invalidate(s.session.Token())
		}
		requestID := ""
		if dispErr != nil {
			requestID = dispErr.RequestID
		}
		return s.failure(ctx, def.Identity, requestID, args, start, err), nil
	}

	s.success(ctx, def.Identity, args, start, result)
	return textResult(result), nil
}

// resolveCredentials fetches the session's credentials when the service has
// credential mappings configured. Services without mappings dispatch
// anonymously.
func (s *Server) resolveCredentials(ctx context.Context) (*credential.Credential, error) {
	if len(s.cfg.Auth.Credentials) == 0 || s.cache == nil {
		return nil, nil
	}

	token := s.session.Token()
	if token == "" {
		return nil, &apierrors.AuthError{
			Kind:    apierrors.InvalidToken,
			Message: "no session is active; call set_auth_token first",
		}
	}
	return s.cache.Get(ctx, token)
}

// failure logs, audits, and shapes an error result.
func (s *Server) failure(ctx context.Context, identity, requestID string, args map[string]interface{}, start time.Time, err error) *mcp.CallToolResult {
	kind := apierrors.Kind(err)
	durationMs := time.Since(start).Milliseconds()

	log.LogToolResult(s.logger, &log.ToolCall{
		Operation: identity,
		Session:   log.FingerprintToken(s.session.Token()),
		RequestID: requestID,
	}, &log.ToolResult{
		ErrorKind:  kind,
		Error:      err.Error(),
		DurationMs: durationMs,
	})

	s.record(ctx, audit.Record{
		Operation:  identity,
		Session:    log.FingerprintToken(s.session.Token()),
		RequestID:  requestID,
		Outcome:    kind,
		DurationMs: durationMs,
		Args:       audit.RedactArgs(args),
	})

	return errorResult(&errorPayload{
		ErrorKind: kind,
		Message:   err.Error(),
		Details:   apierrors.Details(err),
	})
}

// success logs and audits a completed dispatch.
func (s *Server) success(ctx context.Context, identity string, args map[string]interface{}, start time.Time, result *dispatch.Result) {
	durationMs := time.Since(start).Milliseconds()

	log.LogToolResult(s.logger, &log.ToolCall{
		Operation: identity,
		Session:   log.FingerprintToken(s.session.Token()),
		RequestID: result.RequestID,
	}, &log.ToolResult{
		Success:    true,
		StatusCode: result.StatusCode,
		Bytes:      len(result.Body),
		DurationMs: durationMs,
	})

	s.record(ctx, audit.Record{
		Operation:  identity,
		Session:    log.FingerprintToken(s.session.Token()),
		RequestID:  result.RequestID,
		Outcome:    "success",
		StatusCode: result.StatusCode,
		DurationMs: durationMs,
		Args:       audit.RedactArgs(args),
	})
}

// record appends an audit record; trail failures never fail the call.
func (s *Server) record(ctx context.Context, rec audit.Record) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Append(ctx, rec); err != nil {
		s.logger.Warn("audit append failed", slog.String("error", err.Error()))
	}
}

// textResult shapes a successful upstream response.
func textResult(result *dispatch.Result) *mcp.CallToolResult {
	text := string(result.Body)
	if result.Truncated {
		text += "\n[response truncated]"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

// errorResult shapes a structured error for the tool caller.
func errorResult(payload *errorPayload) *mcp.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(payload.Message)
	}
	return mcp.NewToolResultError(string(data))
}
