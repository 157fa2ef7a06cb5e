// Package registry maps canonical provider names to adapter constructors.
package registry

import (
	"net/http"
	"time"

	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/adapters/anthropic"
	"github.com/blocher/simpleai/pkg/adapters/gemini"
	"github.com/blocher/simpleai/pkg/adapters/grok"
	"github.com/blocher/simpleai/pkg/adapters/openai"
	"github.com/blocher/simpleai/pkg/adapters/perplexity"
	"github.com/blocher/simpleai/pkg/aierr"
)

// Factory builds an adapter from its resolved provider configuration.
type Factory func(cfg map[string]any, httpClient *http.Client, hooks adapters.Hooks) (adapters.Adapter, error)

var factories = map[string]Factory{
	"openai": func(cfg map[string]any, c *http.Client, h adapters.Hooks) (adapters.Adapter, error) {
		return openai.New(cfg, c, h)
	},
	"claude": func(cfg map[string]any, c *http.Client, h adapters.Hooks) (adapters.Adapter, error) {
		return anthropic.New(cfg, c, h)
	},
	"gemini": func(cfg map[string]any, c *http.Client, h adapters.Hooks) (adapters.Adapter, error) {
		return gemini.New(cfg, c, h)
	},
	"grok": func(cfg map[string]any, c *http.Client, h adapters.Hooks) (adapters.Adapter, error) {
		return grok.New(cfg, c, h)
	},
	"perplexity": func(cfg map[string]any, c *http.Client, h adapters.Hooks) (adapters.Adapter, error) {
		return perplexity.New(cfg, c, h)
	},
}

// Providers returns the canonical provider names with registered factories.
func Providers() []string {
	return []string{"openai", "claude", "gemini", "grok", "perplexity"}
}

// Supported reports whether a canonical provider name has a factory.
func Supported(provider string) bool {
	_, ok := factories[provider]
	return ok
}

// Build constructs the adapter for a canonical provider name. Construction
// failures, such as a missing API key, surface as provider errors so callers
// can distinguish them from transport failures later on.
func Build(provider string, cfg map[string]any, httpClient *http.Client, hooks adapters.Hooks) (adapters.Adapter, error) {
	factory, ok := factories[provider]
	if !ok {
		return nil, aierr.Provider("unsupported provider %q", provider)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	adapter, err := factory(cfg, httpClient, hooks)
	if err != nil {
		if aierr.IsLibraryError(err) {
			return nil, err
		}
		return nil, aierr.ProviderWrap(err, "building %s adapter: %v", provider, err)
	}
	return adapter, nil
}
