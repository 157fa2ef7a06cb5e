// Package grok adapts the uniform prompt contract to the xAI Grok chat API,
// including its tagged inline citation variants.
package grok

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/aierr"
	"github.com/blocher/simpleai/pkg/schema"
)

const (
	defaultBaseURL = "https://api.x.ai"
	searchNudge    = "You must use the web_search tool before answering and ground your response in cited sources."
)

// Adapter implements adapters.Adapter for Grok.
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

func (a *Adapter) Name() string { return "grok" }

func (a *Adapter) SupportsBinaryFiles() bool { return true }

func (a *Adapter) Run(ctx context.Context, req adapters.Request) (*adapters.Response, error) {
	if req.Model == "" {
		return nil, aierr.ProviderWrap(adapters.ErrEmptyModel, "grok adapter failed: %v", adapters.ErrEmptyModel)
	}

	fileIDs, err := a.uploadFiles(ctx, req.Files)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "grok adapter failed: %v", err)
	}

	payload := map[string]any{
		"model":      req.Model,
		"messages":   buildMessages(req.Prompt, fileIDs, req.RequireSearch),
		"max_tokens": adapters.IntOpt(a.settings, "max_tokens", 8192),
	}

	if req.RequireSearch {
		payload["tools"] = []any{map[string]any{"type": "web_search"}}
		payload["tool_choice"] = "required"
		payload["max_turns"] = adapters.IntOpt(a.settings, "max_turns", 12)
	}

	if req.ReturnCitations {
		include := []any{"inline_citations"}
		if req.RequireSearch {
			include = append(include, "web_search_call_output")
		}
		payload["include"] = include
	}

	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "simpleai_output"
		}
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"schema": schema.Copy(req.Schema),
			},
		}
	}

	adapters.MergeOptions(payload, req.Options, req.RequireSearch)

	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", nil)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "grok adapter failed: %v", err)
	}
	hReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	body, err := adapters.DoJSON(ctx, a.httpClient, hReq, payload)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "grok adapter failed: %v", err)
	}

	raw := adapters.ParseJSONMap(body)
	text := extractText(raw)

	var citations []adapters.Citation
	if req.ReturnCitations {
		citations = extractCitations(raw)
	}
	return &adapters.Response{Text: text, Citations: citations, Raw: raw}, nil
}

func (a *Adapter) uploadFiles(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.apiKey)

	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		body, err := adapters.UploadFile(ctx, a.httpClient, a.baseURL+"/v1/files", header, "file", path, nil)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", path, err)
		}
		id := adapters.Str(adapters.ParseJSONMap(body), "id")
		if id == "" {
			return nil, fmt.Errorf("upload %s: response missing file id", path)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildMessages(prompt adapters.Prompt, fileIDs []string, requireSearch bool) []any {
	var messages []any
	if requireSearch {
		messages = append(messages, map[string]any{"role": "system", "content": searchNudge})
	}

	turns := prompt.List()
	if len(turns) == 0 {
		turns = []string{""}
	}
	for i, turn := range turns {
		last := i == len(turns)-1
		if last && len(fileIDs) > 0 {
			content := []any{map[string]any{"type": "text", "text": turn}}
			for _, id := range fileIDs {
				content = append(content, map[string]any{"type": "file", "file_id": id})
			}
			messages = append(messages, map[string]any{"role": "user", "content": content})
			continue
		}
		messages = append(messages, map[string]any{"role": "user", "content": turn})
	}
	return messages
}

func extractText(raw map[string]any) string {
	if content := adapters.Str(raw, "content"); content != "" {
		return content
	}
	var chunks []string
	for _, item := range adapters.AsSlice(raw["choices"]) {
		message := adapters.AsMap(adapters.AsMap(item)["message"])
		if text := adapters.Str(message, "content"); text != "" {
			chunks = append(chunks, text)
		}
	}
	return strings.Join(chunks, "\n")
}

func extractCitations(raw map[string]any) []adapters.Citation {
	set := adapters.NewCitationSet()

	// Top-level citations are bare URLs or domains.
	for _, item := range adapters.AsSlice(raw["citations"]) {
		source, _ := item.(string)
		if source == "" {
			continue
		}
		c := adapters.Citation{Provider: "grok", Source: source}
		if strings.HasPrefix(source, "http") {
			c.URL = source
		}
		set.Add(c)
	}

	// Inline citations carry one-of web / x / collections variants,
	// discriminated by which tagged field is present.
	for _, item := range adapters.AsSlice(raw["inline_citations"]) {
		inline := adapters.AsMap(item)
		if inline == nil {
			continue
		}

		c := adapters.Citation{
			Provider:   "grok",
			CitationID: adapters.Str(inline, "id"),
			Title:      adapters.Str(inline, "title"),
			StartIndex: adapters.FloatIndex(inline["start_index"]),
			EndIndex:   adapters.FloatIndex(inline["end_index"]),
			Raw:        inline,
		}

		switch {
		case adapters.AsMap(inline["web_citation"]) != nil:
			web := adapters.AsMap(inline["web_citation"])
			c.URL = adapters.Str(web, "url")
			c.Source = c.URL
		case adapters.AsMap(inline["x_citation"]) != nil:
			x := adapters.AsMap(inline["x_citation"])
			c.URL = adapters.Str(x, "url")
			c.Source = "x"
		case adapters.AsMap(inline["collections_citation"]) != nil:
			c.Source = "collections"
		}

		set.Add(c)
	}

	return set.List()
}
