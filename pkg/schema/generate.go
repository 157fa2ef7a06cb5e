package schema

import (
	"reflect"
	"strings"
	"time"
)

// For derives a JSON Schema from a Go value's type, the way callers would hand
// a typed output model to the entry point. Exported struct fields map to
// properties via their json tags; non-pointer fields without omitempty are
// required; a `description` struct tag becomes the property description.
func For(v any) map[string]any {
	return typeSchema(reflect.TypeOf(v), map[reflect.Type]bool{})
}

func typeSchema(t reflect.Type, visiting map[reflect.Type]bool) map[string]any {
	if t == nil {
		return map[string]any{}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == reflect.TypeOf(time.Time{}) {
		return map[string]any{"type": "string", "format": "date-time"}
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{
			"type":  "array",
			"items": typeSchema(t.Elem(), visiting),
		}
	case reflect.Map:
		return map[string]any{
			"type":                 "object",
			"additionalProperties": typeSchema(t.Elem(), visiting),
		}
	case reflect.Struct:
		if visiting[t] {
			// Recursive type; stop expanding.
			return map[string]any{"type": "object"}
		}
		visiting[t] = true
		defer delete(visiting, t)
		return structSchema(t, visiting)
	case reflect.Interface:
		return map[string]any{}
	default:
		return map[string]any{}
	}
}

func structSchema(t reflect.Type, visiting map[reflect.Type]bool) map[string]any {
	properties := map[string]any{}
	required := []any{}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			embedded := structSchema(field.Type, visiting)
			for name, prop := range AsPropMap(embedded["properties"]) {
				properties[name] = prop
			}
			if req, ok := embedded["required"].([]any); ok {
				required = append(required, req...)
			}
			continue
		}

		name, omitempty, skip := jsonFieldName(field)
		if skip {
			continue
		}

		prop := typeSchema(field.Type, visiting)
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		properties[name] = prop

		if field.Type.Kind() != reflect.Pointer && !omitempty {
			required = append(required, name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func jsonFieldName(field reflect.StructField) (name string, omitempty bool, skip bool) {
	name = field.Name
	tag := field.Tag.Get("json")
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" && len(parts) == 1 {
		return "", false, true
	}
	if parts[0] != "" {
		name = parts[0]
	}
	for _, part := range parts[1:] {
		if part == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

// AsPropMap returns v as a property mapping, or an empty one.
func AsPropMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}
