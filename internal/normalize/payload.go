package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func list(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]any)
	return v
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := scalar(m[key])
	return s
}

// scalar renders JSON strings and numbers as text.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// priceOf accepts a bare amount or a price object.
func priceOf(v any) string {
	if s, ok := scalar(v); ok {
		return s
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"discountedPrice", "sellingPrice", "value", "originalPrice"} {
		switch inner := m[key].(type) {
		case map[string]any:
			if s, ok := scalar(inner["value"]); ok {
				return s
			}
		default:
			if s, ok := scalar(inner); ok {
				return s
			}
		}
	}
	return ""
}
