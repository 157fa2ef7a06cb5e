// Package schema makes caller-supplied structured-output schemas acceptable
// to each provider's strict JSON Schema dialect.
//
// Two primitives cover every provider: closing object nodes and stripping
// unsupported keywords. Per-provider builders compose them so each adapter
// opts into exactly the restrictions its vendor validator enforces.
package schema

// AnthropicUnsupportedKeys are JSON Schema keywords the Anthropic structured
// output validator rejects.
var AnthropicUnsupportedKeys = []string{
	"minimum",
	"maximum",
	"exclusiveMinimum",
	"exclusiveMaximum",
	"multipleOf",
	"minItems",
	"maxItems",
	"uniqueItems",
}

// Copy deep-copies a JSON-shaped value (maps, slices, scalars). Normalization
// always operates on a copy; the caller's schema is never mutated.
func Copy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, value := range t {
			out[key] = Copy(value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Copy(item)
		}
		return out
	default:
		return v
	}
}

// EnforceClosedObjects returns a copy of schema where every object-like node
// has additionalProperties forced to false, overriding any pre-existing value.
// A node counts as object-like when its type is (or includes) "object", or it
// already carries properties, required, patternProperties, or
// additionalProperties.
func EnforceClosedObjects(schema map[string]any) map[string]any {
	copied, _ := Copy(schema).(map[string]any)
	closeObjects(copied)
	return copied
}

func closeObjects(node any) {
	m, ok := node.(map[string]any)
	if !ok {
		if list, ok := node.([]any); ok {
			for _, item := range list {
				closeObjects(item)
			}
		}
		return
	}

	if isObjectish(m) {
		m["additionalProperties"] = false
	}
	for _, value := range m {
		closeObjects(value)
	}
}

func isObjectish(m map[string]any) bool {
	switch t := m["type"].(type) {
	case string:
		if t == "object" {
			return true
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "object" {
				return true
			}
		}
	}
	for _, key := range []string{"properties", "required", "patternProperties", "additionalProperties"} {
		if _, present := m[key]; present {
			return true
		}
	}
	return false
}

// StripKeywords returns a copy of schema with every named keyword removed from
// every mapping node, recursively, including list-embedded nodes.
func StripKeywords(schema map[string]any, keys []string) map[string]any {
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}
	copied, _ := Copy(schema).(map[string]any)
	stripKeys(copied, drop)
	return copied
}

func stripKeys(node any, drop map[string]struct{}) {
	switch t := node.(type) {
	case map[string]any:
		for key := range t {
			if _, dead := drop[key]; dead {
				delete(t, key)
				continue
			}
			stripKeys(t[key], drop)
		}
	case []any:
		for _, item := range t {
			stripKeys(item, drop)
		}
	}
}

// ForOpenAI builds the strict-mode schema for the OpenAI Responses API.
func ForOpenAI(schema map[string]any) map[string]any {
	return EnforceClosedObjects(schema)
}

// ForAnthropic builds the output_config schema for the Anthropic Messages API.
// Closing happens before stripping so the strip pass cannot reintroduce keys.
func ForAnthropic(schema map[string]any) map[string]any {
	return StripKeywords(EnforceClosedObjects(schema), AnthropicUnsupportedKeys)
}

// ForPerplexity builds the response_format schema for the Perplexity API.
func ForPerplexity(schema map[string]any) map[string]any {
	return EnforceClosedObjects(schema)
}
