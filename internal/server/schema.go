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
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/apibridge/internal/binding"
	"github.com/tombee/apibridge/internal/catalog"
)

// toolInputSchema builds the JSON Schema advertised for an operation tool.
// Declared parameters become properties; operations with a body get the
// reserved body property, and every operation accepts confirm.
func toolInputSchema(def *catalog.OperationDefinition) mcp.ToolInputSchema {
	properties := make(map[string]interface{}, len(def.Parameters)+2)
	var required []string

	for _, p := range def.Parameters {
		prop := map[string]interface{}{
			"type": schemaType(p.Type),
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Pattern != "" {
			prop["pattern"] = p.Pattern
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	if def.Body != nil {
		prop := map[string]interface{}{
			"type":        "object",
			"description": "JSON request body",
		}
		if def.Body.Description != "" {
			prop["description"] = def.Body.Description
		}
		properties[binding.BodyArg] = prop
		if def.Body.Required {
			required = append(required, binding.BodyArg)
		}
	}

	properties[binding.ConfirmArg] = map[string]interface{}{
		"type":        "boolean",
		"description": "Set true to confirm an operation gated by policy",
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// schemaType maps catalog parameter types to JSON Schema types.
func schemaType(t string) string {
	switch t {
	case "integer", "number", "boolean", "array", "object", "string":
		return t
	default:
		return "string"
	}
}
