package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError represents one structural violation with its location.
type ValidationError struct {
	Field   string `json:"field"`   // JSON path of the offending value
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// walker validates a value against a JSON-schema-shaped map. Only the subset
// of keywords used by the built-in schemas is understood; unknown keywords
// are ignored.
type walker struct {
	defs   map[string]any
	issues []*ValidationError
}

func (w *walker) fail(field string, value any, format string, args ...any) {
	w.issues = append(w.issues, &ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

func (w *walker) resolve(s map[string]any) map[string]any {
	ref, ok := s["$ref"].(string)
	if !ok {
		return s
	}

	name := strings.TrimPrefix(ref, "#/$defs/")
	if def, ok := w.defs[name].(map[string]any); ok {
		return def
	}

	return map[string]any{}
}

func (w *walker) validate(field string, value any, s map[string]any) {
	s = w.resolve(s)

	if expected, ok := s["type"].(string); ok && !isValidType(value, expected) {
		w.fail(field, value, "expected type %s, got %s", expected, jsonTypeName(value))
		return
	}

	if enum, ok := s["enum"].([]any); ok && !containsValue(enum, value) {
		w.fail(field, value, "value %v not in %v", value, enum)
	}

	switch v := value.(type) {
	case string:
		w.validateString(field, v, s)
	case []any:
		w.validateArray(field, v, s)
	case map[string]any:
		w.validateObject(field, v, s)
	case float64:
		w.validateNumber(field, v, s)
	case int:
		w.validateNumber(field, float64(v), s)
	}
}

func (w *walker) validateNumber(field string, v float64, s map[string]any) {
	if min, ok := s["minimum"].(int); ok && v < float64(min) {
		w.fail(field, v, "must be >= %d", min)
	}
}

func (w *walker) validateString(field, v string, s map[string]any) {
	if min, ok := s["minLength"].(int); ok && len(strings.TrimSpace(v)) < min {
		w.fail(field, v, "must have at least %d characters", min)
	}

	if format, ok := s["format"].(string); ok && format == FormatSafePath {
		if reason := unsafePathReason(v); reason != "" {
			w.fail(field, v, "unsafe path: %s", reason)
		}
	}
}

func (w *walker) validateArray(field string, v []any, s map[string]any) {
	if min, ok := s["minItems"].(int); ok && len(v) < min {
		w.fail(field, len(v), "must contain at least %d items", min)
	}

	if unique, _ := s["uniqueItems"].(bool); unique {
		for i := 0; i < len(v); i++ {
			for j := i + 1; j < len(v); j++ {
				if reflect.DeepEqual(v[i], v[j]) {
					w.fail(fmt.Sprintf("%s[%d]", field, j), v[j], "duplicate item")
				}
			}
		}
	}

	if items, ok := s["items"].(map[string]any); ok {
		for i, item := range v {
			w.validate(fmt.Sprintf("%s[%d]", field, i), item, items)
		}
	}
}

func (w *walker) validateObject(field string, v map[string]any, s map[string]any) {
	if required, ok := s["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, exists := v[name]; !exists {
				w.fail(field+"."+name, nil, "required field is missing")
			}
		}
	}

	if min, ok := s["minProperties"].(int); ok && len(v) < min {
		w.fail(field, len(v), "must contain at least %d entries", min)
	}

	properties, _ := s["properties"].(map[string]any)
	names, _ := s["propertyNames"].(map[string]any)

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		child := field + "." + k

		if names != nil {
			w.validate(child, k, names)
		}

		if prop, ok := properties[k].(map[string]any); ok {
			w.validate(child, v[k], prop)
			continue
		}

		switch extra := s["additionalProperties"].(type) {
		case bool:
			if !extra {
				w.fail(child, v[k], "additional property not allowed")
			}
		case map[string]any:
			w.validate(child, v[k], extra)
		}
	}
}

// unsafePathReason returns why p is not a safe relative path, or "".
func unsafePathReason(p string) string {
	switch {
	case p == "":
		return "empty"
	case strings.HasPrefix(p, "/"):
		return "absolute path"
	case strings.Contains(p, "//"):
		return "doubled separator"
	}

	for _, seg := range strings.Split(strings.TrimSuffix(p, "/"), "/") {
		switch seg {
		case "..":
			return "contains '..'"
		case ".":
			return "contains '.' segment"
		}
	}

	for _, r := range p {
		if !isPathRune(r) {
			return fmt.Sprintf("invalid character %q", r)
		}
	}

	return ""
}

func isPathRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-', r == '.', r == '~', r == '/':
		return true
	}

	return false
}

// IsSafePath reports whether p is a relative path accepted by the schemas.
func IsSafePath(p string) bool {
	return unsafePathReason(p) == ""
}

func containsValue(enum []any, value any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, value) {
			return true
		}
	}

	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return false
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling produces float64 for numbers
			return v == float64(int64(v))
		}

		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}

		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
