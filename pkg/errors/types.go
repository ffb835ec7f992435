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

package errors

import (
	"fmt"
	"time"
)

// CatalogError represents a fatal error while building the operation catalog.
// Catalog errors are surfaced at startup; the process must not serve tools
// after one occurs.
type CatalogError struct {
	// OperationID is the upstream operation identifier involved, if known
	OperationID string

	// Identity is the derived tool identity involved, if known
	Identity string

	// Reason explains what is wrong with the descriptor set
	Reason string
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	switch {
	case e.Identity != "":
		return fmt.Sprintf("catalog error for %s: %s", e.Identity, e.Reason)
	case e.OperationID != "":
		return fmt.Sprintf("catalog error for operation %s: %s", e.OperationID, e.Reason)
	default:
		return fmt.Sprintf("catalog error: %s", e.Reason)
	}
}

// ValidationKind classifies parameter validation failures.
type ValidationKind string

const (
	// MissingParameter indicates a required parameter was absent.
	MissingParameter ValidationKind = "missing_parameter"

	// FormatMismatch indicates a parameter value did not satisfy its
	// declared format constraint (regex or enum).
	FormatMismatch ValidationKind = "format_mismatch"

	// UnknownParameter indicates an argument not declared on the operation.
	UnknownParameter ValidationKind = "unknown_parameter"
)

// ValidationError represents caller-fixable argument validation failures.
// These are never retried automatically; the caller must correct the
// arguments and re-invoke.
type ValidationError struct {
	// Kind classifies the failure
	Kind ValidationKind

	// Parameter is the offending parameter name
	Parameter string

	// Expected describes the constraint that was violated
	// (e.g., the regex pattern or the enum literals)
	Expected string

	// Received is a truncated rendering of the offending value, if any
	Received string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingParameter:
		return fmt.Sprintf("missing required parameter %q", e.Parameter)
	case FormatMismatch:
		return fmt.Sprintf("parameter %q does not match expected format %s", e.Parameter, e.Expected)
	case UnknownParameter:
		return fmt.Sprintf("unknown parameter %q is not declared on this operation", e.Parameter)
	default:
		return fmt.Sprintf("validation failed on %q", e.Parameter)
	}
}

// AuthKind classifies credential resolution failures.
type AuthKind string

const (
	// GatewayUnreachable indicates the credential authority could not be
	// reached; retryable by the caller after backoff.
	GatewayUnreachable AuthKind = "gateway_unreachable"

	// InvalidToken indicates the authority rejected the session token.
	InvalidToken AuthKind = "invalid_token"

	// NotConfigured indicates the authority URL or service key was never
	// configured.
	NotConfigured AuthKind = "not_configured"
)

// AuthError represents a failure to obtain upstream credentials from the
// credential authority.
type AuthError struct {
	// Kind classifies the failure
	Kind AuthKind

	// Message is a user-facing description safe to log and display
	Message string

	// StatusCode is the authority's HTTP status, if one was received
	StatusCode int

	// Cause is the underlying error; may contain sensitive detail
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("auth gateway error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("auth gateway error: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the caller may usefully retry after backoff.
func (e *AuthError) IsRetryable() bool {
	return e.Kind == GatewayUnreachable
}

// PolicyKind classifies policy filter outcomes that halt dispatch.
type PolicyKind string

const (
	// Blocked indicates a Block rule matched; dispatch is refused outright.
	Blocked PolicyKind = "blocked"

	// ConfirmationRequired indicates a Confirm rule matched and the call
	// did not carry the confirmation flag.
	ConfirmationRequired PolicyKind = "confirmation_required"
)

// PolicyError represents a policy filter decision that halted dispatch.
// Policy errors are never retried automatically; ConfirmationRequired is
// resolved by re-invoking with the confirmation flag set.
type PolicyError struct {
	// Kind classifies the decision
	Kind PolicyKind

	// Identity is the operation identity that was evaluated
	Identity string

	// Rule is the pattern of the rule that matched
	Rule string

	// Description is a human-readable explanation suitable for prompting
	Description string
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	if e.Kind == ConfirmationRequired {
		return fmt.Sprintf("operation %s requires confirmation (rule %q)", e.Identity, e.Rule)
	}
	return fmt.Sprintf("operation %s is blocked by policy (rule %q)", e.Identity, e.Rule)
}

// DispatchKind classifies upstream dispatch failures.
type DispatchKind string

const (
	// Unreachable indicates a network failure or timeout reaching the
	// upstream API.
	Unreachable DispatchKind = "unreachable"

	// Unauthorized indicates the upstream rejected the injected
	// credentials (401/403); the cached credential has been invalidated.
	Unauthorized DispatchKind = "unauthorized"

	// UpstreamError indicates any other non-2xx upstream response.
	UpstreamError DispatchKind = "upstream_error"
)

// DispatchError represents a failure to execute the upstream request.
type DispatchError struct {
	// Kind classifies the failure
	Kind DispatchKind

	// Identity is the operation identity being dispatched
	Identity string

	// StatusCode is the upstream HTTP status, if one was received
	StatusCode int

	// Body is a truncated excerpt of the upstream response body
	Body string

	// RequestID correlates this error with dispatch logs
	RequestID string

	// RetryAfter is the upstream's requested retry delay, if it sent one
	RetryAfter time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("dispatch %s failed", e.Identity)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	switch {
	case e.Body != "":
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	case e.Cause != nil:
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}
