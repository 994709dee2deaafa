// Package ai wraps the generative model behind typed operations:
// classification, schema extraction, rule evaluation and mismatch
// arbitration. All responses are parsed strictly first and leniently second.
package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StripFences removes a leading/trailing markdown code fence from model
// output. Models occasionally wrap JSON in ```json fences even when asked
// not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseJSON decodes raw model output into out. The strict pass requires the
// whole payload to be valid JSON and, when a schema is given, to validate
// against it. The lenient pass extracts the first balanced JSON object from
// the surrounding prose and decodes that without schema validation.
// The returned flag reports whether the lenient pass was needed.
func ParseJSON(raw string, schema *jsonschema.Schema, out interface{}) (bool, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return false, fmt.Errorf("empty model response")
	}

	if err := parseStrict(cleaned, schema, out); err == nil {
		return false, nil
	}

	extracted, ok := extractBalancedObject(cleaned)
	if !ok {
		return true, fmt.Errorf("no JSON object found in model response")
	}
	if err := json.Unmarshal([]byte(extracted), out); err != nil {
		return true, fmt.Errorf("lenient parse failed: %w", err)
	}
	return true, nil
}

func parseStrict(cleaned string, schema *jsonschema.Schema, out interface{}) error {
	if schema != nil {
		var generic interface{}
		if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
			return err
		}
		if err := schema.Validate(generic); err != nil {
			return err
		}
	}
	return json.Unmarshal([]byte(cleaned), out)
}

// extractBalancedObject returns the first top-level {...} span, tracking
// string literals and escapes so braces inside values do not confuse the
// balance count.
func extractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// mustSchema compiles a response schema at package init.
func mustSchema(name, schema string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, schema)
}
