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

package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// document is the subset of an OpenAPI 3.x document the catalog consumes.
// YAML unmarshalling also accepts JSON specs since JSON is a YAML subset.
type document struct {
	OpenAPI    string                         `yaml:"openapi"`
	Info       documentInfo                   `yaml:"info"`
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components documentComponents             `yaml:"components"`
}

type documentInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

type documentComponents struct {
	Parameters map[string]specParameter `yaml:"parameters"`
}

// specOperation is one operation object under a path item.
type specOperation struct {
	OperationID string          `yaml:"operationId"`
	Summary     string          `yaml:"summary"`
	Description string          `yaml:"description"`
	Deprecated  bool            `yaml:"deprecated"`
	Parameters  []specParameter `yaml:"parameters"`
	RequestBody *specBody       `yaml:"requestBody"`
}

type specParameter struct {
	Ref         string      `yaml:"$ref"`
	Name        string      `yaml:"name"`
	In          string      `yaml:"in"`
	Required    bool        `yaml:"required"`
	Description string      `yaml:"description"`
	Schema      *specSchema `yaml:"schema"`
}

type specSchema struct {
	Type    string   `yaml:"type"`
	Pattern string   `yaml:"pattern"`
	Enum    []string `yaml:"enum"`
}

type specBody struct {
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// methodOrder fixes the descriptor order within a path item so catalogs are
// deterministic regardless of map iteration.
var methodOrder = []string{"get", "post", "put", "patch", "delete"}

// LoadDocument reads an OpenAPI document from disk and normalizes it into
// operation descriptors.
func LoadDocument(path string) ([]OperationDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apierrors.CatalogError{Reason: fmt.Sprintf("read spec: %v", err)}
	}
	return ParseDocument(data)
}

// ParseDocument normalizes a raw OpenAPI 3.x document into operation
// descriptors. Operations marked deprecated are skipped. Parameters declared
// at the path-item level are merged into each operation, with operation-level
// declarations taking precedence on name and location.
func ParseDocument(data []byte) ([]OperationDescriptor, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &apierrors.CatalogError{Reason: fmt.Sprintf("parse spec: %v", err)}
	}
	if len(doc.Paths) == 0 {
		return nil, &apierrors.CatalogError{Reason: "spec declares no paths"}
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var descriptors []OperationDescriptor
	for _, path := range paths {
		item := doc.Paths[path]

		// Path-level parameters apply to every operation under this path.
		var shared []specParameter
		if node, ok := item["parameters"]; ok {
			if err := node.Decode(&shared); err != nil {
				return nil, &apierrors.CatalogError{
					Reason: fmt.Sprintf("path %s: invalid shared parameters: %v", path, err),
				}
			}
		}

		for _, method := range methodOrder {
			node, ok := item[method]
			if !ok {
				continue
			}

			var op specOperation
			if err := node.Decode(&op); err != nil {
				return nil, &apierrors.CatalogError{
					Reason: fmt.Sprintf("path %s %s: invalid operation: %v", strings.ToUpper(method), path, err),
				}
			}
			if op.Deprecated {
				continue
			}

			params, err := normalizeParameters(path, shared, op.Parameters, doc.Components.Parameters)
			if err != nil {
				return nil, err
			}

			desc := OperationDescriptor{
				OperationID: op.OperationID,
				Method:      strings.ToUpper(method),
				Path:        path,
				Summary:     firstNonEmpty(op.Summary, op.Description),
				Parameters:  params,
			}
			if op.RequestBody != nil {
				desc.Body = &BodySchema{
					Required:    op.RequestBody.Required,
					Description: op.RequestBody.Description,
				}
			}
			descriptors = append(descriptors, desc)
		}
	}

	return descriptors, nil
}

// normalizeParameters merges shared and operation parameters, resolves local
// component references, and converts to ParameterSpec form.
func normalizeParameters(path string, shared, own []specParameter, components map[string]specParameter) ([]ParameterSpec, error) {
	type key struct{ name, in string }
	seen := make(map[key]bool)
	var out []ParameterSpec

	add := func(raw specParameter) error {
		p, err := resolveParameter(raw, components)
		if err != nil {
			return &apierrors.CatalogError{Reason: fmt.Sprintf("path %s: %v", path, err)}
		}

		loc, ok := parseLocation(p.In)
		if !ok {
			// Cookie and other locations are not dispatchable; skip.
			return nil
		}

		k := key{p.Name, p.In}
		if seen[k] {
			return nil
		}
		seen[k] = true

		spec := ParameterSpec{
			Name:        p.Name,
			Location:    loc,
			Type:        "string",
			Required:    p.Required,
			Description: p.Description,
		}
		if loc == InPath {
			// Path parameters are always required regardless of declaration.
			spec.Required = true
		}
		if p.Schema != nil {
			if p.Schema.Type != "" {
				spec.Type = p.Schema.Type
			}
			spec.Pattern = p.Schema.Pattern
			spec.Enum = append([]string(nil), p.Schema.Enum...)
		}
		out = append(out, spec)
		return nil
	}

	// Operation-level declarations win over path-level ones.
	for _, p := range own {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	for _, p := range shared {
		if err := add(p); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// resolveParameter follows a local #/components/parameters reference.
func resolveParameter(p specParameter, components map[string]specParameter) (specParameter, error) {
	if p.Ref == "" {
		return p, nil
	}
	const prefix = "#/components/parameters/"
	if !strings.HasPrefix(p.Ref, prefix) {
		return p, fmt.Errorf("unsupported parameter reference %q", p.Ref)
	}
	name := strings.TrimPrefix(p.Ref, prefix)
	resolved, ok := components[name]
	if !ok {
		return p, fmt.Errorf("unresolved parameter reference %q", p.Ref)
	}
	if resolved.Ref != "" {
		return p, fmt.Errorf("nested parameter reference %q", p.Ref)
	}
	return resolved, nil
}

func parseLocation(in string) (Location, bool) {
	switch in {
	case "path":
		return InPath, true
	case "query":
		return InQuery, true
	case "header":
		return InHeader, true
	default:
		return "", false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
