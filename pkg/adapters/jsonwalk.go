package adapters

// Helpers for walking loosely-typed provider response bodies. Each extractor
// pattern-matches on known block type tags; anything of an unexpected shape
// degrades to a zero value instead of panicking.

// AsMap returns v as a mapping, or nil.
func AsMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// AsSlice returns v as a list. A single mapping is wrapped into a one-item
// list, which matches providers that return either shape for the same field.
func AsSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	}
	return nil
}

// Str returns the string at m[key], or "".
func Str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// FirstStr returns the first non-empty string among m[keys...].
func FirstStr(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := Str(m, key); s != "" {
			return s
		}
	}
	return ""
}

// IntOpt reads an integer option that may arrive as an int or a JSON float.
func IntOpt(m map[string]any, key string, fallback int) int {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// BoolOpt reads a boolean option.
func BoolOpt(m map[string]any, key string, fallback bool) bool {
	if m == nil {
		return fallback
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}
