// Package models resolves the provider/model pair a prompt should run on.
package models

import (
	"strings"

	"github.com/blocher/simpleai/internal/settings"
	"github.com/blocher/simpleai/pkg/aierr"
)

// modelPrefixes infers the owning provider for a bare model identifier.
// Ordered table, deliberately open to extension.
var modelPrefixes = []struct {
	prefix   string
	provider string
}{
	{"gpt-", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"o4", "openai"},
	{"claude", "claude"},
	{"gemini", "gemini"},
	{"grok", "grok"},
	{"sonar", "perplexity"},
}

// Resolve picks the provider and concrete model for a run. override may be
// empty (first configured default provider), a provider alias ("anthropic"),
// or a specific model identifier ("gpt-5.2").
func Resolve(s settings.Settings, override string) (provider string, model string, err error) {
	override = strings.TrimSpace(override)

	if override == "" {
		defaults := s.DefaultProviders()
		if len(defaults) == 0 {
			return "", "", aierr.ModelResolution("no default providers configured")
		}
		return providerDefault(s, defaults[0])
	}

	if canonical := settings.CanonicalProvider(override); canonical != "" {
		return providerDefault(s, canonical)
	}

	lowered := strings.ToLower(override)
	for _, entry := range modelPrefixes {
		if strings.HasPrefix(lowered, entry.prefix) {
			return entry.provider, override, nil
		}
	}

	// provider/model qualified names route through Perplexity's Responses API.
	if strings.Contains(override, "/") {
		return "perplexity", override, nil
	}

	return "", "", aierr.ModelResolution("cannot resolve provider for model %q", override)
}

func providerDefault(s settings.Settings, provider string) (string, string, error) {
	cfg, err := s.ProviderConfig(provider)
	if err != nil {
		return "", "", err
	}
	model, _ := cfg["default_model"].(string)
	if model == "" {
		return "", "", aierr.ModelResolution("provider %q has no default_model configured", provider)
	}
	return provider, model, nil
}
