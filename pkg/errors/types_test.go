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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	apierrors "github.com/tombee/apibridge/pkg/errors"
)

func TestValidationErrorMessages(t *testing.T) {
	t.Run("missing parameter names the parameter", func(t *testing.T) {
		err := &apierrors.ValidationError{
			Kind:      apierrors.MissingParameter,
			Parameter: "id",
		}
		if !strings.Contains(err.Error(), `"id"`) {
			t.Errorf("expected parameter name in message, got %q", err.Error())
		}
	})

	t.Run("format mismatch includes expected pattern", func(t *testing.T) {
		err := &apierrors.ValidationError{
			Kind:      apierrors.FormatMismatch,
			Parameter: "board_id",
			Expected:  "^[a-f0-9]{24}$",
		}
		if !strings.Contains(err.Error(), "^[a-f0-9]{24}$") {
			t.Errorf("expected pattern in message, got %q", err.Error())
		}
	})

	t.Run("unknown parameter is rejected, not dropped", func(t *testing.T) {
		err := &apierrors.ValidationError{
			Kind:      apierrors.UnknownParameter,
			Parameter: "extra",
		}
		if !strings.Contains(err.Error(), "not declared") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
}

func TestAuthErrorRetryable(t *testing.T) {
	tests := []struct {
		kind      apierrors.AuthKind
		retryable bool
	}{
		{apierrors.GatewayUnreachable, true},
		{apierrors.InvalidToken, false},
		{apierrors.NotConfigured, false},
	}

	for _, tt := range tests {
		err := &apierrors.AuthError{Kind: tt.kind, Message: "test"}
		if err.IsRetryable() != tt.retryable {
			t.Errorf("kind %s: IsRetryable() = %v, want %v", tt.kind, err.IsRetryable(), tt.retryable)
		}
	}
}

func TestDispatchErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &apierrors.DispatchError{
		Kind:     apierrors.Unreachable,
		Identity: "trello_get_cards",
		Cause:    cause,
	}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the underlying cause")
	}

	wrapped := fmt.Errorf("dispatching: %w", err)
	var dispatchErr *apierrors.DispatchError
	if !errors.As(wrapped, &dispatchErr) {
		t.Fatal("expected errors.As to find DispatchError through wrapping")
	}
	if dispatchErr.Identity != "trello_get_cards" {
		t.Errorf("unexpected identity %q", dispatchErr.Identity)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"catalog", &apierrors.CatalogError{Reason: "duplicate"}, "catalog_error"},
		{"missing parameter", &apierrors.ValidationError{Kind: apierrors.MissingParameter, Parameter: "id"}, "missing_parameter"},
		{"invalid token", &apierrors.AuthError{Kind: apierrors.InvalidToken, Message: "rejected"}, "invalid_token"},
		{"blocked", &apierrors.PolicyError{Kind: apierrors.Blocked, Identity: "x", Rule: "delete_*"}, "blocked"},
		{"confirmation", &apierrors.PolicyError{Kind: apierrors.ConfirmationRequired, Identity: "x", Rule: "x"}, "confirmation_required"},
		{"upstream", &apierrors.DispatchError{Kind: apierrors.UpstreamError, Identity: "x", StatusCode: 500}, "upstream_error"},
		{"outside taxonomy", errors.New("boom"), "internal"},
		{"wrapped taxonomy error", apierrors.Wrap(&apierrors.AuthError{Kind: apierrors.NotConfigured, Message: "no url"}, "resolving"), "not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apierrors.Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetails(t *testing.T) {
	t.Run("policy error carries identity and rule", func(t *testing.T) {
		err := &apierrors.PolicyError{
			Kind:     apierrors.Blocked,
			Identity: "github_delete_repo",
			Rule:     "delete_*",
		}
		details := apierrors.Details(err)
		if details["operation"] != "github_delete_repo" {
			t.Errorf("missing operation detail: %v", details)
		}
		if details["rule"] != "delete_*" {
			t.Errorf("missing rule detail: %v", details)
		}
	})

	t.Run("dispatch error carries status and body", func(t *testing.T) {
		err := &apierrors.DispatchError{
			Kind:       apierrors.UpstreamError,
			Identity:   "trello_get_cards",
			StatusCode: 502,
			Body:       "bad gateway",
		}
		details := apierrors.Details(err)
		if details["status_code"] != 502 {
			t.Errorf("missing status_code detail: %v", details)
		}
		if details["body"] != "bad gateway" {
			t.Errorf("missing body detail: %v", details)
		}
	})

	t.Run("plain error has no details", func(t *testing.T) {
		if details := apierrors.Details(errors.New("boom")); details != nil {
			t.Errorf("expected nil details, got %v", details)
		}
	})
}
