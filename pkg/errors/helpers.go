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
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := loadSpec(path); err != nil {
//	    return errors.Wrap(err, "loading OpenAPI document")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New from the standard library.
func New(message string) error {
	return errors.New(message)
}

// Kind returns the stable error-kind string for a taxonomy error, suitable
// for the {errorKind, message, details} surface returned to tool callers.
// Returns "internal" for errors outside the taxonomy.
func Kind(err error) string {
	var (
		catalogErr    *CatalogError
		validationErr *ValidationError
		authErr       *AuthError
		policyErr     *PolicyError
		dispatchErr   *DispatchError
	)

	switch {
	case errors.As(err, &catalogErr):
		return "catalog_error"
	case errors.As(err, &validationErr):
		return string(validationErr.Kind)
	case errors.As(err, &authErr):
		return string(authErr.Kind)
	case errors.As(err, &policyErr):
		return string(policyErr.Kind)
	case errors.As(err, &dispatchErr):
		return string(dispatchErr.Kind)
	default:
		return "internal"
	}
}

// Details returns structured detail fields for a taxonomy error: the
// operation identity, offending parameter, matched rule, or upstream status,
// whichever the error carries. Returns nil for errors with no extra detail.
func Details(err error) map[string]interface{} {
	var (
		validationErr *ValidationError
		authErr       *AuthError
		policyErr     *PolicyError
		dispatchErr   *DispatchError
	)

	switch {
	case errors.As(err, &validationErr):
		details := map[string]interface{}{"parameter": validationErr.Parameter}
		if validationErr.Expected != "" {
			details["expected"] = validationErr.Expected
		}
		if validationErr.Received != "" {
			details["received"] = validationErr.Received
		}
		return details

	case errors.As(err, &authErr):
		if authErr.StatusCode > 0 {
			return map[string]interface{}{"status_code": authErr.StatusCode}
		}
		return nil

	case errors.As(err, &policyErr):
		details := map[string]interface{}{
			"operation": policyErr.Identity,
			"rule":      policyErr.Rule,
		}
		if policyErr.Description != "" {
			details["description"] = policyErr.Description
		}
		return details

	case errors.As(err, &dispatchErr):
		details := map[string]interface{}{"operation": dispatchErr.Identity}
		if dispatchErr.StatusCode > 0 {
			details["status_code"] = dispatchErr.StatusCode
		}
		if dispatchErr.Body != "" {
			details["body"] = dispatchErr.Body
		}
		if dispatchErr.RequestID != "" {
			details["request_id"] = dispatchErr.RequestID
		}
		return details

	default:
		return nil
	}
}
