package simpleai

import (
	"encoding/json"
	"strings"

	"github.com/blocher/simpleai/pkg/aierr"
)

// decodeOutput turns raw adapter text into the caller's typed value. Some
// providers wrap JSON in Markdown code fences even when a schema was attached,
// so a fenced body is unwrapped before decoding.
func decodeOutput(format *OutputFormat, text string) (any, error) {
	if format == nil || format.New == nil {
		return nil, nil
	}
	value := format.New()
	body := stripCodeFence(text)
	if err := json.Unmarshal([]byte(body), value); err != nil {
		return nil, aierr.ProviderWrap(err, "cannot decode structured output: %v", err)
	}
	return value, nil
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimSuffix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(trimmed, "json")
	}
	return strings.TrimSpace(trimmed)
}
