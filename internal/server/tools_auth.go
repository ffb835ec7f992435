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
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/apibridge/internal/log"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// registerAuthTools registers the built-in session management tools. They
// bypass the rate limiter so a caller can always repair their session.
func (s *Server) registerAuthTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "set_auth_token",
		Description: "Set the session token used to resolve upstream API credentials. Replaces any previous session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Session token issued by the credential authority",
				},
			},
			Required: []string{"token"},
		},
	}, s.handleSetAuthToken)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "logout",
		Description: "Clear the current session and drop its cached credentials.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleLogout)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "auth_status",
		Description: "Report whether a session is active and when it expires.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleAuthStatus)
}

func (s *Server) handleSetAuthToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil || token == "" {
		return errorResult(&errorPayload{
			ErrorKind: "missing_parameter",
			Message:   "missing or empty 'token' argument",
			Details:   map[string]interface{}{"parameter": "token"},
		}), nil
	}

	// Resolve credentials up front so a bad token fails here, not on the
	// first operation call. Failures leave the previous session in place.
	if len(s.cfg.Auth.Credentials) > 0 && s.cache != nil {
		if _, err := s.cache.Get(ctx, token); err != nil {
			s.logger.Warn("session token rejected",
				slog.String(log.SessionKey, log.FingerprintToken(token)),
				slog.String("error", err.Error()),
			)
			return errorResult(&errorPayload{
				ErrorKind: apierrors.Kind(err),
				Message:   err.Error(),
				Details:   apierrors.Details(err),
			}), nil
		}
	}

	previous := s.session.Token()
	s.session.Set(token)
	if previous != "" && previous != token && s.cache != nil {
		s.cache.Invalidate(previous)
	}

	s.logger.Info("session token set",
		slog.String(log.SessionKey, log.FingerprintToken(token)),
	)

	status := map[string]interface{}{"authenticated": true}
	if info, ok := inspectToken(token); ok {
		if info.Subject != "" {
			status["subject"] = info.Subject
		}
		if !info.ExpiresAt.IsZero() {
			status["expires_at"] = info.ExpiresAt.UTC().Format(time.RFC3339)
			if time.Now().After(info.ExpiresAt) {
				status["expired"] = true
			}
		}
	}
	return jsonResult(status), nil
}

func (s *Server) handleLogout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	previous := s.session.Clear()
	if previous != "" && s.cache != nil {
		s.cache.Invalidate(previous)
	}

	s.logger.Info("session cleared",
		slog.String(log.SessionKey, log.FingerprintToken(previous)),
	)

	return jsonResult(map[string]interface{}{"authenticated": false}), nil
}

func (s *Server) handleAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := s.session.Token()

	status := map[string]interface{}{
		"authenticated":      token != "",
		"gateway_configured": s.cfg.Auth.GatewayURL != "" && s.cfg.Auth.GatewayAPIKey != "",
	}
	if token != "" {
		status["session"] = log.FingerprintToken(token)
		if info, ok := inspectToken(token); ok {
			if info.Subject != "" {
				status["subject"] = info.Subject
			}
			if !info.ExpiresAt.IsZero() {
				status["expires_at"] = info.ExpiresAt.UTC().Format(time.RFC3339)
				status["expired"] = time.Now().After(info.ExpiresAt)
			}
		}
	}
	return jsonResult(status), nil
}

// jsonResult shapes a JSON object as a successful tool result.
func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encoding result failed")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}
}
