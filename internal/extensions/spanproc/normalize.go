package spanproc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NormalizeValue flattens arbitrary input/output payloads into a map with
// stringified primitives. JSON strings are parsed and normalized
// recursively; arrays become index-keyed maps; bare primitives land under
// a synthetic key.
func NormalizeValue(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return map[string]any{}
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			switch parsed.(type) {
			case map[string]any, []any:
				return NormalizeValue(parsed)
			}
		}
		return map[string]any{"output": v}
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeEntry(item)
		}
		return out
	case []any:
		out := make(map[string]any, len(v))
		for i, item := range v {
			out[strconv.Itoa(i)] = normalizeEntry(item)
		}
		return out
	default:
		return map[string]any{"result": stringify(v)}
	}
}

func normalizeEntry(value any) any {
	switch value.(type) {
	case map[string]any, []any:
		return NormalizeValue(value)
	default:
		return stringify(value)
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// floatAttribute reads a numeric span attribute tolerating the string and
// integer encodings different SDKs emit.
func floatAttribute(attrs map[string]any, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// stringList decodes an attribute holding either a JSON-encoded array or
// a native string slice.
func stringList(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, stringify(item))
		}
		return out
	case string:
		var parsed []string
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed
		}
		var loose []any
		if err := json.Unmarshal([]byte(s), &loose); err == nil {
			out := make([]string, 0, len(loose))
			for _, item := range loose {
				out = append(out, stringify(item))
			}
			return out
		}
	}
	return nil
}

// anyMap decodes an attribute holding either a JSON-encoded object or a
// native map.
func anyMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(m), &parsed); err == nil {
			return parsed
		}
	}
	return nil
}
