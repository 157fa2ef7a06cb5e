// Package settings loads and merges library configuration.
//
// Resolution is explicit and ordered: built-in defaults, then one settings
// file (explicit path, else $SIMPLEAI_SETTINGS_FILE), then an optional
// per-call override mapping. Later layers win field-by-field via deep merge.
// There is no filesystem walking; an absent file simply leaves defaults.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blocher/simpleai/pkg/aierr"
)

// EnvSettingsFile names the environment variable holding a settings file path.
const EnvSettingsFile = "SIMPLEAI_SETTINGS_FILE"

// Settings is the merged configuration tree.
type Settings map[string]any

// providerEnvVars maps canonical provider keys to accepted API key variables,
// first match wins.
var providerEnvVars = map[string][]string{
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"claude":     {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"grok":       {"XAI_API_KEY", "GROK_API_KEY"},
	"perplexity": {"PERPLEXITY_API_KEY", "PPLX_API_KEY"},
}

var providerAliases = map[string]string{
	"google":       "gemini",
	"gemini":       "gemini",
	"anthropic":    "claude",
	"claude":       "claude",
	"openai":       "openai",
	"chatgpt":      "openai",
	"grok":         "grok",
	"xai":          "grok",
	"perplexity":   "perplexity",
	"perplexityai": "perplexity",
}

// Defaults returns the built-in configuration tree.
func Defaults() Settings {
	return Settings{
		"defaults": []any{"gemini", "openai", "claude", "grok", "perplexity"},
		"providers": map[string]any{
			"gemini": map[string]any{
				"api_key":           nil,
				"default_model":     "gemini-3-pro-preview",
				"max_output_tokens": 8192,
			},
			"claude": map[string]any{
				"api_key":       nil,
				"default_model": "claude-opus-4-6",
				"max_tokens":    4096,
				// retries on 429 responses, honoring the Retry-After header
				"max_retries":            3,
				"skip_citation_followup": false,
			},
			"openai": map[string]any{
				"api_key":           nil,
				"default_model":     "gpt-5.2",
				"max_output_tokens": 8192,
				"base_url":          nil,
			},
			"grok": map[string]any{
				"api_key":       nil,
				"default_model": "grok-4-latest",
				"max_tokens":    8192,
			},
			"perplexity": map[string]any{
				"api_key":           nil,
				"default_model":     "sonar-deep-research",
				"max_output_tokens": 4096,
			},
		},
		"logging": map[string]any{
			"enabled":          false,
			"network_logging":  false,
			"logfile_location": "./simpleai.log",
		},
	}
}

// CanonicalProvider maps a provider alias to its canonical key, or "".
func CanonicalProvider(name string) string {
	return providerAliases[strings.ToLower(strings.TrimSpace(name))]
}

// ExpectedEnvVars returns the accepted API key environment variables for a
// canonical provider key.
func ExpectedEnvVars(provider string) []string {
	return append([]string(nil), providerEnvVars[provider]...)
}

// Load builds the merged settings tree. path may be empty; override may be nil.
func Load(path string, override map[string]any) (Settings, error) {
	merged := map[string]any(Defaults())

	fileData, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if fileData != nil {
		merged = DeepMerge(merged, normalizeUser(fileData))
	}
	if override != nil {
		merged = DeepMerge(merged, normalizeUser(override))
	}
	return Settings(merged), nil
}

func loadFile(explicit string) (map[string]any, error) {
	path := explicit
	required := explicit != ""
	if path == "" {
		path = os.Getenv(EnvSettingsFile)
	}
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, aierr.SettingsWrap(err, "cannot read settings file %s: %v", path, err)
	}

	data := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, aierr.SettingsWrap(err, "invalid YAML in settings file %s: %v", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, aierr.SettingsWrap(err, "invalid JSON in settings file %s: %v", path, err)
		}
	}
	return data, nil
}

// DeepMerge merges override onto base field-by-field. Nested mappings merge
// recursively; everything else replaces. Neither input is mutated.
func DeepMerge(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		merged[key] = deepCopy(value)
	}
	for key, value := range override {
		if sub, ok := value.(map[string]any); ok {
			if existing, ok := merged[key].(map[string]any); ok {
				merged[key] = DeepMerge(existing, sub)
				continue
			}
		}
		merged[key] = deepCopy(value)
	}
	return merged
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, value := range t {
			out[key] = deepCopy(value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// normalizeUser maps provider keys and defaults entries through the alias
// table so user files can say "anthropic" or "google".
func normalizeUser(raw map[string]any) map[string]any {
	normalized := deepCopy(raw).(map[string]any)

	providersRaw, ok := normalized["providers"].(map[string]any)
	if !ok {
		providersRaw, _ = normalized["provider"].(map[string]any)
	}
	if providersRaw != nil {
		providers := make(map[string]any, len(providersRaw))
		for key, value := range providersRaw {
			canonical := CanonicalProvider(key)
			if canonical == "" {
				canonical = strings.ToLower(key)
			}
			providers[canonical] = value
		}
		normalized["providers"] = providers
		delete(normalized, "provider")
	}

	if defaultsRaw, ok := normalized["defaults"].([]any); ok {
		mapped := make([]any, 0, len(defaultsRaw))
		seen := map[string]bool{}
		for _, item := range defaultsRaw {
			name, ok := item.(string)
			if !ok {
				continue
			}
			canonical := CanonicalProvider(name)
			if canonical == "" {
				canonical = strings.ToLower(strings.TrimSpace(name))
			}
			if canonical == "" || seen[canonical] {
				continue
			}
			seen[canonical] = true
			mapped = append(mapped, canonical)
		}
		if len(mapped) > 0 {
			normalized["defaults"] = mapped
		}
	}

	return normalized
}

// ProviderConfig returns the configuration mapping for one canonical provider.
func (s Settings) ProviderConfig(provider string) (map[string]any, error) {
	providers, _ := s["providers"].(map[string]any)
	if providers == nil {
		return map[string]any{}, nil
	}
	raw, present := providers[provider]
	if !present || raw == nil {
		return map[string]any{}, nil
	}
	cfg, ok := raw.(map[string]any)
	if !ok {
		return nil, aierr.Settings("invalid settings for provider %q", provider)
	}
	return deepCopy(cfg).(map[string]any), nil
}

// DefaultProviders returns the ordered provider preference list.
func (s Settings) DefaultProviders() []string {
	raw, _ := s["defaults"].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if name, ok := item.(string); ok {
			out = append(out, name)
		}
	}
	return out
}

// Logging returns the logging configuration mapping.
func (s Settings) Logging() map[string]any {
	cfg, _ := s["logging"].(map[string]any)
	if cfg == nil {
		return map[string]any{}
	}
	return cfg
}

// APIKey resolves a provider API key: configured value first, then the
// provider's environment variables in order.
func (s Settings) APIKey(provider string) string {
	cfg, err := s.ProviderConfig(provider)
	if err == nil {
		switch v := cfg["api_key"].(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	for _, envVar := range providerEnvVars[provider] {
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return ""
}
