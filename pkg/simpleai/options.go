package simpleai

import (
	"strings"

	"github.com/blocher/simpleai/pkg/aierr"
	"github.com/blocher/simpleai/pkg/schema"
)

// OutputFormat asks for structured output. Schema may be given directly or
// derived from a fresh value produced by New, which also receives the decoded
// result when set.
type OutputFormat struct {
	Name   string
	Schema map[string]any
	New    func() any
}

func (f *OutputFormat) schemaMap() map[string]any {
	if f == nil {
		return nil
	}
	if f.Schema != nil {
		return f.Schema
	}
	if f.New != nil {
		return schema.For(f.New())
	}
	return nil
}

// Options are the per-call knobs for RunPrompt. Boolean-like fields accept
// bool, nil, or a string form such as "true"/"no"/"1".
type Options struct {
	RequireSearch   any
	ReturnCitations any
	BinaryFiles     any

	File  string
	Files []string

	Model        string
	OutputFormat *OutputFormat

	SettingsFile     string
	SettingsOverride map[string]any

	AdapterOptions map[string]any
	Overrides      map[string]any
}

// Result is what a prompt run produced. Citations is non-nil exactly when
// citations were effectively requested.
type Result struct {
	Text      string
	Value     any
	Citations []map[string]any
}

var boolWords = map[string]bool{
	"true": true, "1": true, "yes": true, "y": true, "on": true,
	"false": false, "0": false, "no": false, "n": false, "off": false,
}

// coerceBool normalizes a boolean-like argument. nil means unspecified and
// yields fallback.
func coerceBool(name string, v any, fallback bool) (bool, error) {
	switch t := v.(type) {
	case nil:
		return fallback, nil
	case bool:
		return t, nil
	case string:
		if b, ok := boolWords[strings.ToLower(strings.TrimSpace(t))]; ok {
			return b, nil
		}
		return false, aierr.Settings("invalid boolean value %q for %s", t, name)
	default:
		return false, aierr.Settings("invalid boolean value %v for %s", v, name)
	}
}
