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

package log

import (
	"context"
	"log/slog"
)

// ToolCall represents an MCP tool invocation for logging purposes.
type ToolCall struct {
	// Operation is the operation identity being invoked.
	Operation string

	// Session is the redacted session fingerprint, if a session is active.
	Session string

	// RequestID is the unique ID assigned to this dispatch.
	RequestID string
}

// ToolResult represents the outcome of a tool invocation for logging.
type ToolResult struct {
	// Success indicates whether the call completed without error.
	Success bool

	// ErrorKind is the taxonomy error kind on failure.
	ErrorKind string

	// Error is the error message on failure.
	Error string

	// StatusCode is the upstream status on success.
	StatusCode int

	// Bytes is the returned body size on success.
	Bytes int

	// DurationMs is the handling duration in milliseconds.
	DurationMs int64
}

// LogToolResult logs the outcome of a tool invocation.
// Failures log at warn level; policy and validation refusals are expected
// outcomes, not server faults.
func LogToolResult(logger *slog.Logger, call *ToolCall, result *ToolResult) {
	attrs := []slog.Attr{
		slog.String(OperationKey, call.Operation),
		slog.Int64(DurationKey, result.DurationMs),
	}
	if call.Session != "" {
		attrs = append(attrs, slog.String(SessionKey, call.Session))
	}
	if call.RequestID != "" {
		attrs = append(attrs, slog.String(RequestIDKey, call.RequestID))
	}

	level := slog.LevelInfo
	message := "tool call completed"
	if result.Success {
		attrs = append(attrs,
			slog.Int("status", result.StatusCode),
			slog.Int("bytes", result.Bytes),
		)
	} else {
		level = slog.LevelWarn
		message = "tool call failed"
		attrs = append(attrs, slog.String("error_kind", result.ErrorKind))
		if result.Error != "" {
			attrs = append(attrs, slog.String("error", result.Error))
		}
	}

	logger.LogAttrs(context.Background(), level, message, attrs...)
}
