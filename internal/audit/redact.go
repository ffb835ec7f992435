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

package audit

import "strings"

// maxArgLength caps how much of any single argument value is recorded.
const maxArgLength = 100

// sensitiveKeys are substrings that mark an argument as secret-bearing.
var sensitiveKeys = []string{
	"key", "token", "password", "secret", "credential", "apikey", "auth",
}

// RedactArgs returns a copy of args safe to persist: secret-bearing values
// are replaced with a placeholder and long strings are truncated. The input
// map is never modified.
func RedactArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}

	filtered := make(map[string]interface{}, len(args))
	for key, value := range args {
		lower := strings.ToLower(key)
		if isSensitive(lower) {
			filtered[key] = "[REDACTED]"
			continue
		}

		if s, ok := value.(string); ok && len(s) > maxArgLength {
			filtered[key] = s[:maxArgLength] + "..."
			continue
		}

		// Nested bodies are summarized rather than stored wholesale.
		if m, ok := value.(map[string]interface{}); ok {
			filtered[key] = RedactArgs(m)
			continue
		}

		filtered[key] = value
	}
	return filtered
}

func isSensitive(lowerKey string) bool {
	for _, s := range sensitiveKeys {
		if strings.Contains(lowerKey, s) {
			return true
		}
	}
	return false
}
