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

// Package catalog builds the immutable operation catalog from a normalized
// OpenAPI operation list.
//
// The catalog is built exactly once at startup and is read-only thereafter,
// so it is shared across concurrent tool calls without locking. Each
// operation gets a globally unique identity of the form {prefix}_{operationId}
// which doubles as the MCP tool name.
package catalog

import (
	"fmt"
	"strings"
	"unicode"

	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// maxIdentityLength is the MCP tool-name length limit.
const maxIdentityLength = 64

// Location is where a parameter is carried on the upstream request.
type Location string

const (
	// InPath parameters substitute into the path template.
	InPath Location = "path"
	// InQuery parameters are appended to the query string.
	InQuery Location = "query"
	// InHeader parameters are sent as request headers.
	InHeader Location = "header"
)

// ParameterSpec declares one operation parameter. Immutable once built.
type ParameterSpec struct {
	// Name is the parameter name as declared upstream.
	Name string

	// Location is path, query, or header.
	Location Location

	// Type is the declared primitive type (string, integer, boolean, array).
	Type string

	// Required marks the parameter as mandatory before dispatch.
	Required bool

	// Pattern is an optional regex the value must match.
	Pattern string

	// Enum is an optional closed set of literal values.
	Enum []string

	// Description documents the parameter for tool consumers.
	Description string
}

// BodySchema declares the request body of an operation.
type BodySchema struct {
	// Required marks the body as mandatory.
	Required bool

	// Description documents the body for tool consumers.
	Description string
}

// OperationDescriptor is the normalized form of one upstream operation, as
// produced by the OpenAPI document parser. Identity derivation and
// uniqueness checks happen in Build, not here.
type OperationDescriptor struct {
	OperationID string
	Method      string
	Path        string
	Summary     string
	Parameters  []ParameterSpec
	Body        *BodySchema
}

// OperationDefinition is one callable operation in the catalog.
// Immutable after Build; owned exclusively by the Catalog.
type OperationDefinition struct {
	// Identity is {prefix}_{sanitized operationId}, unique per catalog.
	Identity string

	// Method is the upstream HTTP method.
	Method string

	// Path is the upstream path template with {name} placeholders.
	Path string

	// Description is the generated tool description.
	Description string

	// Parameters are the declared parameters, in declaration order.
	Parameters []ParameterSpec

	// Body is the request body schema, nil when the operation has none.
	Body *BodySchema
}

// Catalog is the immutable set of operation definitions.
type Catalog struct {
	prefix string
	byID   map[string]*OperationDefinition
	order  []string
}

// validMethods are the HTTP methods the catalog accepts.
var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// Build constructs a catalog from normalized descriptors. It fails with a
// CatalogError if a descriptor lacks an operationId, uses an unsupported
// method, or derives an identity that collides with an earlier descriptor.
// Build performs no network access and runs once per process lifetime.
func Build(prefix string, descriptors []OperationDescriptor) (*Catalog, error) {
	if prefix == "" {
		return nil, &apierrors.CatalogError{Reason: "tool prefix must not be empty"}
	}

	c := &Catalog{
		prefix: prefix,
		byID:   make(map[string]*OperationDefinition, len(descriptors)),
	}

	for _, desc := range descriptors {
		if desc.OperationID == "" {
			return nil, &apierrors.CatalogError{
				Reason: fmt.Sprintf("descriptor %s %s has no operationId", desc.Method, desc.Path),
			}
		}

		method := strings.ToUpper(desc.Method)
		if !validMethods[method] {
			return nil, &apierrors.CatalogError{
				OperationID: desc.OperationID,
				Reason:      fmt.Sprintf("unsupported method %q", desc.Method),
			}
		}

		identity := Identity(prefix, desc.OperationID)
		if _, exists := c.byID[identity]; exists {
			return nil, &apierrors.CatalogError{
				OperationID: desc.OperationID,
				Identity:    identity,
				Reason:      "duplicate operation identity",
			}
		}

		def := &OperationDefinition{
			Identity:    identity,
			Method:      method,
			Path:        desc.Path,
			Description: describe(method, desc),
			Parameters:  append([]ParameterSpec(nil), desc.Parameters...),
			Body:        desc.Body,
		}

		c.byID[identity] = def
		c.order = append(c.order, identity)
	}

	return c, nil
}

// Identity derives the tool identity for an operationId under a prefix:
// lowercase, non-alphanumerics collapsed to underscores, truncated so that
// the full identity fits the MCP tool-name limit.
func Identity(prefix, operationID string) string {
	budget := maxIdentityLength - len(prefix) - 1
	return prefix + "_" + sanitizeName(operationID, budget)
}

// sanitizeName normalizes a raw name for use in a tool identity.
func sanitizeName(name string, maxLen int) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune('_')
		}
	}

	// Collapse runs of underscores and trim the edges.
	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })
	clean := strings.Join(parts, "_")
	if clean == "" {
		clean = "op"
	}
	if maxLen > 0 && len(clean) > maxLen {
		clean = strings.TrimRight(clean[:maxLen], "_")
	}
	return clean
}

// describe generates the tool description from the descriptor.
func describe(method string, desc OperationDescriptor) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%s %s", method, desc.Path))
	if desc.Summary != "" {
		lines = append(lines, desc.Summary)
	}

	var required, optional []string
	for _, p := range desc.Parameters {
		if p.Required {
			required = append(required, p.Name)
		} else {
			optional = append(optional, p.Name)
		}
	}
	if len(required) > 0 {
		lines = append(lines, "Required: "+strings.Join(required, ", "))
	}
	if len(optional) > 0 {
		lines = append(lines, "Optional: "+strings.Join(optional, ", "))
	}
	if desc.Body != nil {
		if desc.Body.Required {
			lines = append(lines, "Requires a JSON request body in the 'body' argument.")
		} else {
			lines = append(lines, "Accepts an optional JSON request body in the 'body' argument.")
		}
	}

	return strings.Join(lines, "\n")
}

// Get returns the definition for an identity.
func (c *Catalog) Get(identity string) (*OperationDefinition, bool) {
	def, ok := c.byID[identity]
	return def, ok
}

// Operations returns all definitions in document order.
func (c *Catalog) Operations() []*OperationDefinition {
	defs := make([]*OperationDefinition, 0, len(c.order))
	for _, id := range c.order {
		defs = append(defs, c.byID[id])
	}
	return defs
}

// Len returns the number of operations in the catalog.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Prefix returns the configured tool prefix.
func (c *Catalog) Prefix() string {
	return c.prefix
}
