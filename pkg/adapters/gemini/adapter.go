// Package gemini adapts the uniform prompt contract to the Gemini
// generateContent API, including grounding-metadata citation extraction.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/aierr"
	"github.com/blocher/simpleai/pkg/schema"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	searchNudge      = "Use Google Search to ground your answer and provide citations to sources."
	querySourceLabel = "google_search_query"
)

// Adapter implements adapters.Adapter for Gemini.
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

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) SupportsBinaryFiles() bool { return true }

func (a *Adapter) Run(ctx context.Context, req adapters.Request) (*adapters.Response, error) {
	if req.Model == "" {
		return nil, aierr.ProviderWrap(adapters.ErrEmptyModel, "gemini adapter failed: %v", adapters.ErrEmptyModel)
	}

	fileParts, err := a.uploadFiles(ctx, req.Files)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "gemini adapter failed: %v", err)
	}

	payload := map[string]any{
		"contents": buildContents(req.Prompt, fileParts),
		"generationConfig": map[string]any{
			"maxOutputTokens": adapters.IntOpt(a.settings, "max_output_tokens", 8192),
		},
	}

	if req.RequireSearch {
		payload["tools"] = []any{map[string]any{"google_search": map[string]any{}}}
		// Gemini has no forced tool_choice for search; a system instruction
		// nudges grounding instead.
		payload["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": searchNudge}},
		}
	}

	if req.Schema != nil {
		gen := payload["generationConfig"].(map[string]any)
		gen["responseMimeType"] = "application/json"
		gen["responseSchema"] = schema.Copy(req.Schema)
	}

	adapters.MergeOptions(payload, req.Options, req.RequireSearch)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		a.baseURL, url.PathEscape(req.Model), url.QueryEscape(a.apiKey))
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "gemini adapter failed: %v", err)
	}

	body, err := adapters.DoJSON(ctx, a.httpClient, hReq, payload)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "gemini adapter failed: %v", err)
	}

	raw := adapters.ParseJSONMap(body)
	text := extractText(raw)

	var citations []adapters.Citation
	if req.ReturnCitations {
		citations = extractCitations(raw)
	}
	return &adapters.Response{Text: text, Citations: citations, Raw: raw}, nil
}

func (a *Adapter) uploadFiles(ctx context.Context, paths []string) ([]any, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/upload/v1beta/files?key=%s", a.baseURL, url.QueryEscape(a.apiKey))
	parts := make([]any, 0, len(paths))
	for _, path := range paths {
		body, err := adapters.UploadFile(ctx, a.httpClient, endpoint, nil, "file", path, nil)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", path, err)
		}
		file := adapters.AsMap(adapters.ParseJSONMap(body)["file"])
		uri := adapters.Str(file, "uri")
		if uri == "" {
			return nil, fmt.Errorf("upload %s: response missing file uri", path)
		}
		part := map[string]any{"fileData": map[string]any{"fileUri": uri}}
		if mime := adapters.Str(file, "mimeType"); mime != "" {
			part["fileData"].(map[string]any)["mimeType"] = mime
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func buildContents(prompt adapters.Prompt, fileParts []any) []any {
	parts := append([]any(nil), fileParts...)
	for _, turn := range prompt.List() {
		parts = append(parts, map[string]any{"text": turn})
	}
	if len(parts) == 0 {
		parts = append(parts, map[string]any{"text": ""})
	}
	return []any{map[string]any{"role": "user", "parts": parts}}
}

func extractText(raw map[string]any) string {
	var chunks []string
	for _, item := range adapters.AsSlice(raw["candidates"]) {
		candidate := adapters.AsMap(item)
		content := adapters.AsMap(candidate["content"])
		for _, partItem := range adapters.AsSlice(content["parts"]) {
			part := adapters.AsMap(partItem)
			if part == nil {
				continue
			}
			if _, present := part["text"]; present {
				chunks = append(chunks, adapters.Str(part, "text"))
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func extractCitations(raw map[string]any) []adapters.Citation {
	set := adapters.NewCitationSet()

	for _, item := range adapters.AsSlice(raw["candidates"]) {
		candidate := adapters.AsMap(item)

		// Inline citation metadata with offsets.
		meta := firstMap(candidate, "citation_metadata", "citationMetadata")
		for _, citItem := range adapters.AsSlice(meta["citations"]) {
			cit := adapters.AsMap(citItem)
			if cit == nil {
				continue
			}
			uri := adapters.Str(cit, "uri")
			start := adapters.FloatIndex(cit["start_index"])
			if start == nil {
				start = adapters.FloatIndex(cit["startIndex"])
			}
			end := adapters.FloatIndex(cit["end_index"])
			if end == nil {
				end = adapters.FloatIndex(cit["endIndex"])
			}
			set.Add(adapters.Citation{
				Provider:   "gemini",
				URL:        uri,
				Title:      adapters.Str(cit, "title"),
				Source:     uri,
				StartIndex: start,
				EndIndex:   end,
				Raw:        cit,
			})
		}

		// Grounding metadata from the Google Search tool.
		grounding := firstMap(candidate, "grounding_metadata", "groundingMetadata")
		chunks := adapters.AsSlice(grounding["grounding_chunks"])
		if chunks == nil {
			chunks = adapters.AsSlice(grounding["groundingChunks"])
		}
		for _, chunkItem := range chunks {
			chunk := adapters.AsMap(chunkItem)
			if chunk == nil {
				continue
			}

			if web := adapters.AsMap(chunk["web"]); len(web) > 0 {
				url := adapters.FirstStr(web, "uri", "url")
				source := adapters.FirstStr(web, "domain", "uri", "url")
				set.Add(adapters.Citation{
					Provider: "gemini",
					URL:      url,
					Title:    adapters.Str(web, "title"),
					Source:   source,
					Raw:      chunk,
				})
			}

			if retrieved := firstMap(chunk, "retrieved_context", "retrievedContext"); len(retrieved) > 0 {
				title := adapters.FirstStr(retrieved, "title", "document_name", "documentName")
				source := adapters.FirstStr(retrieved, "document_name", "documentName", "uri")
				set.Add(adapters.Citation{
					Provider: "gemini",
					URL:      adapters.Str(retrieved, "uri"),
					Title:    title,
					Source:   source,
					Snippet:  adapters.Str(retrieved, "text"),
					Raw:      chunk,
				})
			}

			if maps := adapters.AsMap(chunk["maps"]); len(maps) > 0 {
				set.Add(adapters.Citation{
					Provider: "gemini",
					URL:      adapters.Str(maps, "uri"),
					Title:    adapters.Str(maps, "title"),
					Source:   "google_maps",
					Snippet:  adapters.Str(maps, "text"),
					Raw:      chunk,
				})
			}
		}

		// Raw search queries still count as provenance even without a
		// resolved source.
		queries := adapters.AsSlice(grounding["web_search_queries"])
		if queries == nil {
			queries = adapters.AsSlice(grounding["webSearchQueries"])
		}
		for _, queryItem := range queries {
			query, _ := queryItem.(string)
			if query == "" {
				continue
			}
			set.Add(adapters.Citation{
				Provider: "gemini",
				Source:   querySourceLabel,
				Snippet:  query,
				Raw:      map[string]any{"query": query},
			})
		}
	}

	return set.List()
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if sub := adapters.AsMap(m[key]); sub != nil {
			return sub
		}
	}
	return map[string]any{}
}
