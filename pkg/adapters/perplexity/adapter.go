// Package perplexity adapts the uniform prompt contract to the Perplexity
// Responses API, including search-preset model resolution.
package perplexity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/aierr"
	"github.com/blocher/simpleai/pkg/schema"
)

const defaultBaseURL = "https://api.perplexity.ai"

// presetAliases maps bare model names to the three search-depth presets,
// including legacy Sonar naming.
var presetAliases = map[string]string{
	"fast-search":         "fast-search",
	"pro-search":          "pro-search",
	"deep-research":       "deep-research",
	"sonar":               "fast-search",
	"sonar-pro":           "pro-search",
	"sonar-reasoning":     "pro-search",
	"sonar-reasoning-pro": "deep-research",
	"sonar-deep-research": "deep-research",
}

// providerPrefixes qualifies bare foreign model names for the Responses API.
// Best-effort prefix matching, kept as a table open to extension.
var providerPrefixes = []struct {
	prefix    string
	qualifier string
}{
	{"gpt-", "openai/"},
	{"o1", "openai/"},
	{"o3", "openai/"},
	{"o4", "openai/"},
	{"claude", "anthropic/"},
	{"gemini", "google/"},
	{"grok", "xai/"},
	{"sonar", "perplexity/"},
}

// Adapter implements adapters.Adapter for Perplexity.
type Adapter struct {
	apiKey     string
	baseURL    string
	settings   map[string]any
	httpClient *http.Client
	hooks      adapters.Hooks
}

func New(cfg map[string]any, httpClient *http.Client, hooks adapters.Hooks) (*Adapter, error) {
	apiKey := adapters.Str(cfg, "api_key")
	if strings.TrimSpace(apiKey) == "" {
		return nil, adapters.ErrMissingAPIKey
	}
	baseURL := adapters.Str(cfg, "base_url")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		settings:   cfg,
		httpClient: httpClient,
		hooks:      hooks,
	}, nil
}

func (a *Adapter) Name() string { return "perplexity" }

func (a *Adapter) SupportsBinaryFiles() bool { return false }

func (a *Adapter) Run(ctx context.Context, req adapters.Request) (*adapters.Response, error) {
	payload := map[string]any{
		"input":             buildInput(req.Prompt),
		"max_output_tokens": adapters.IntOpt(a.settings, "max_output_tokens", 4096),
	}
	key, target := ResolveModelTarget(req.Model)
	payload[key] = target

	if req.RequireSearch {
		payload["tools"] = []any{map[string]any{"type": "web_search"}}
	}

	schemaAttached := false
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "simpleai_output"
		}
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"schema": schema.ForPerplexity(req.Schema),
				"strict": true,
			},
		}
		schemaAttached = true
	}

	adapters.MergeOptions(payload, req.Options, req.RequireSearch)

	body, err := a.post(ctx, payload)
	if err != nil {
		// Some underlying models reject the strict schema outright. Retry
		// once with the schema removed.
		var apiErr *adapters.APIError
		if schemaAttached && errors.As(err, &apiErr) && apiErr.IsInvalidRequest() {
			a.hooks.OnRetry(a.Name())
			delete(payload, "response_format")
			body, err = a.post(ctx, payload)
		}
		if err != nil {
			return nil, aierr.ProviderWrap(err, "perplexity adapter failed: %v", err)
		}
	}

	raw := adapters.ParseJSONMap(body)
	text := extractText(raw)

	var citations []adapters.Citation
	if req.ReturnCitations {
		citations = extractCitations(raw)
	}
	return &adapters.Response{Text: text, Citations: citations, Raw: raw}, nil
}

func (a *Adapter) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/responses", nil)
	if err != nil {
		return nil, err
	}
	hReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	return adapters.DoJSON(ctx, a.httpClient, hReq, payload)
}

// ResolveModelTarget maps a model argument to either a search preset or a
// provider-qualified model name. Already-qualified names pass through.
func ResolveModelTarget(model string) (key string, target string) {
	normalized := strings.TrimSpace(model)
	lowered := strings.ToLower(normalized)

	if preset, ok := presetAliases[lowered]; ok {
		return "preset", preset
	}
	if strings.Contains(normalized, "/") {
		return "model", normalized
	}
	for _, entry := range providerPrefixes {
		if strings.HasPrefix(lowered, entry.prefix) {
			return "model", entry.qualifier + normalized
		}
	}
	return "model", normalized
}

func buildInput(prompt adapters.Prompt) any {
	if !prompt.IsList() {
		return prompt.String()
	}
	turns := prompt.List()
	if len(turns) == 0 {
		return ""
	}
	messages := make([]any, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, map[string]any{
			"type":    "message",
			"role":    "user",
			"content": turn,
		})
	}
	return messages
}

func extractText(raw map[string]any) string {
	if text := adapters.Str(raw, "output_text"); text != "" {
		return text
	}
	var chunks []string
	for _, item := range adapters.AsSlice(raw["output"]) {
		output := adapters.AsMap(item)
		if adapters.Str(output, "type") != "message" {
			continue
		}
		for _, partItem := range adapters.AsSlice(output["content"]) {
			part := adapters.AsMap(partItem)
			if adapters.Str(part, "type") == "output_text" {
				chunks = append(chunks, adapters.Str(part, "text"))
			}
		}
	}
	return strings.Join(chunks, "")
}

func extractCitations(raw map[string]any) []adapters.Citation {
	set := adapters.NewCitationSet()

	for _, item := range adapters.AsSlice(raw["output"]) {
		output := adapters.AsMap(item)
		switch adapters.Str(output, "type") {
		case "message":
			for _, partItem := range adapters.AsSlice(output["content"]) {
				for _, annItem := range adapters.AsSlice(adapters.AsMap(partItem)["annotations"]) {
					annotation := adapters.AsMap(annItem)
					if annotation == nil {
						continue
					}
					url := adapters.Str(annotation, "url")
					set.Add(adapters.Citation{
						Provider:   "perplexity",
						URL:        url,
						Title:      adapters.Str(annotation, "title"),
						Source:     url,
						StartIndex: adapters.FloatIndex(annotation["start_index"]),
						EndIndex:   adapters.FloatIndex(annotation["end_index"]),
						Raw:        annotation,
					})
				}
			}
		case "search_results":
			for _, resultItem := range adapters.AsSlice(output["results"]) {
				result := adapters.AsMap(resultItem)
				if result == nil {
					continue
				}
				set.Add(adapters.Citation{
					Provider: "perplexity",
					URL:      adapters.Str(result, "url"),
					Title:    adapters.Str(result, "title"),
					Source:   adapters.Str(result, "source"),
					Snippet:  adapters.Str(result, "snippet"),
					Raw:      result,
				})
			}
		}
	}

	return set.List()
}
