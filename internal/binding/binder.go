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

// Package binding validates raw tool arguments against an operation
// definition and produces a dispatch-ready bound request.
//
// Binding is strict: every required parameter must be present, every
// supplied argument must be declared (or be one of the reserved names), and
// values must satisfy the declared type, pattern, and enum constraints.
// Nothing reaches the dispatcher until binding succeeds.
package binding

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tombee/apibridge/internal/catalog"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// Reserved argument names that never bind to declared parameters.
const (
	// BodyArg carries the JSON request body for operations that accept one.
	BodyArg = "body"
	// ConfirmArg carries the caller's confirmation flag for gated operations.
	ConfirmArg = "confirm"
)

// BoundRequest is the validated, dispatch-ready form of a tool call.
type BoundRequest struct {
	// Method is the upstream HTTP method.
	Method string

	// Path is the upstream path with all placeholders substituted and
	// percent-encoded.
	Path string

	// Query holds the bound query parameters.
	Query url.Values

	// Headers holds the bound header parameters.
	Headers map[string]string

	// Body is the raw request body value, nil when absent.
	Body interface{}

	// Confirmed reports whether the caller passed confirm: true.
	Confirmed bool
}

// Binder validates arguments against catalog definitions.
type Binder struct {
	maxValueLength int

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// New creates a binder. maxValueLength caps the stringified length of any
// single bound value; zero disables the cap.
func New(maxValueLength int) *Binder {
	return &Binder{
		maxValueLength: maxValueLength,
		patterns:       make(map[string]*regexp.Regexp),
	}
}

// Bind validates args against def and builds the bound request. The first
// violation found is returned as a ValidationError; args and def are never
// mutated.
func (b *Binder) Bind(def *catalog.OperationDefinition, args map[string]interface{}) (*BoundRequest, error) {
	bound := &BoundRequest{
		Method:  def.Method,
		Path:    def.Path,
		Query:   url.Values{},
		Headers: map[string]string{},
	}

	declared := make(map[string]catalog.ParameterSpec, len(def.Parameters))
	for _, p := range def.Parameters {
		declared[p.Name] = p
	}

	for name, raw := range args {
		switch name {
		case BodyArg:
			if def.Body == nil {
				return nil, &apierrors.ValidationError{
					Kind:      apierrors.UnknownParameter,
					Parameter: name,
					Expected:  "no request body for this operation",
				}
			}
			bound.Body = raw
			continue
		case ConfirmArg:
			confirmed, ok := raw.(bool)
			if !ok {
				return nil, &apierrors.ValidationError{
					Kind:      apierrors.FormatMismatch,
					Parameter: name,
					Expected:  "boolean",
					Received:  describeValue(raw),
				}
			}
			bound.Confirmed = confirmed
			continue
		}

		spec, ok := declared[name]
		if !ok {
			return nil, &apierrors.ValidationError{
				Kind:      apierrors.UnknownParameter,
				Parameter: name,
			}
		}

		value, err := b.coerce(spec, raw)
		if err != nil {
			return nil, err
		}

		switch spec.Location {
		case catalog.InPath:
			placeholder := "{" + spec.Name + "}"
			if !strings.Contains(bound.Path, placeholder) {
				// A declared path parameter with no placeholder is a defect
				// in the operation definition, not in the caller's input.
				return nil, &apierrors.CatalogError{
					Identity: def.Identity,
					Reason:   fmt.Sprintf("path template %s lacks placeholder %s", def.Path, placeholder),
				}
			}
			bound.Path = strings.ReplaceAll(bound.Path, placeholder, url.PathEscape(value))
		case catalog.InQuery:
			bound.Query.Set(spec.Name, value)
		case catalog.InHeader:
			bound.Headers[spec.Name] = value
		}
	}

	// Required checks run after binding so the error names the first
	// declared parameter that is actually absent.
	for _, p := range def.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return nil, &apierrors.ValidationError{
				Kind:      apierrors.MissingParameter,
				Parameter: p.Name,
				Expected:  p.Type,
			}
		}
	}
	if def.Body != nil && def.Body.Required && bound.Body == nil {
		return nil, &apierrors.ValidationError{
			Kind:      apierrors.MissingParameter,
			Parameter: BodyArg,
			Expected:  "JSON request body",
		}
	}

	return bound, nil
}

// coerce converts a raw argument into its wire string and enforces the
// declared constraints.
func (b *Binder) coerce(spec catalog.ParameterSpec, raw interface{}) (string, error) {
	value, ok := stringify(spec.Type, raw)
	if !ok {
		return "", &apierrors.ValidationError{
			Kind:      apierrors.FormatMismatch,
			Parameter: spec.Name,
			Expected:  spec.Type,
			Received:  describeValue(raw),
		}
	}

	if b.maxValueLength > 0 && len(value) > b.maxValueLength {
		return "", &apierrors.ValidationError{
			Kind:      apierrors.FormatMismatch,
			Parameter: spec.Name,
			Expected:  fmt.Sprintf("at most %d characters", b.maxValueLength),
			Received:  fmt.Sprintf("%d characters", len(value)),
		}
	}

	if len(spec.Enum) > 0 && !contains(spec.Enum, value) {
		return "", &apierrors.ValidationError{
			Kind:      apierrors.FormatMismatch,
			Parameter: spec.Name,
			Expected:  "one of " + strings.Join(spec.Enum, ", "),
			Received:  value,
		}
	}

	if spec.Pattern != "" {
		re, err := b.pattern(spec.Pattern)
		if err == nil && !re.MatchString(value) {
			return "", &apierrors.ValidationError{
				Kind:      apierrors.FormatMismatch,
				Parameter: spec.Name,
				Expected:  "match for " + spec.Pattern,
				Received:  value,
			}
		}
	}

	return value, nil
}

// pattern returns a compiled regex, cached per binder. Patterns that fail to
// compile are not enforced; the upstream service remains the authority.
func (b *Binder) pattern(expr string) (*regexp.Regexp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if re, ok := b.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	b.patterns[expr] = re
	return re, nil
}

// stringify converts a JSON-decoded argument to its wire form, enforcing the
// declared type.
func stringify(declaredType string, raw interface{}) (string, bool) {
	switch declaredType {
	case "integer":
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return "", false
			}
			return strconv.FormatInt(int64(v), 10), true
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		case string:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", false
			}
			return v, true
		}
		return "", false

	case "number":
		switch v := raw.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return "", false
			}
			return v, true
		}
		return "", false

	case "boolean":
		switch v := raw.(type) {
		case bool:
			return strconv.FormatBool(v), true
		case string:
			if v == "true" || v == "false" {
				return v, true
			}
		}
		return "", false

	case "array":
		items, ok := raw.([]interface{})
		if !ok {
			return "", false
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := stringify("string", item)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true

	default:
		switch v := raw.(type) {
		case string:
			return v, true
		case float64:
			if v == math.Trunc(v) {
				return strconv.FormatInt(int64(v), 10), true
			}
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
		return "", false
	}
}

func describeValue(raw interface{}) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
