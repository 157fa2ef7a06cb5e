// Package openai adapts the uniform prompt contract to the OpenAI Responses API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/aierr"
	"github.com/blocher/simpleai/pkg/schema"
)

const defaultBaseURL = "https://api.openai.com"

// Adapter implements adapters.Adapter for OpenAI.
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

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) SupportsBinaryFiles() bool { return true }

func (a *Adapter) Run(ctx context.Context, req adapters.Request) (*adapters.Response, error) {
	if req.Model == "" {
		return nil, aierr.ProviderWrap(adapters.ErrEmptyModel, "openai adapter failed: %v", adapters.ErrEmptyModel)
	}

	fileIDs, err := a.uploadFiles(ctx, req.Files)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "openai adapter failed: %v", err)
	}

	payload := map[string]any{
		"model":             req.Model,
		"input":             a.buildInput(req.Prompt, fileIDs),
		"max_output_tokens": adapters.IntOpt(a.settings, "max_output_tokens", 8192),
	}

	if req.RequireSearch {
		payload["tools"] = []any{map[string]any{"type": "web_search"}}
		payload["tool_choice"] = "required"
		if req.ReturnCitations {
			payload["include"] = []any{"web_search_call.action.sources"}
		}
	}

	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "simpleai_output"
		}
		payload["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   name,
				"schema": schema.ForOpenAI(req.Schema),
				"strict": true,
			},
		}
	}

	adapters.MergeOptions(payload, req.Options, req.RequireSearch)

	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/responses", nil)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "openai adapter failed: %v", err)
	}
	hReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	body, err := adapters.DoJSON(ctx, a.httpClient, hReq, payload)
	if err != nil {
		return nil, aierr.ProviderWrap(err, "openai adapter failed: %v", err)
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
		body, err := adapters.UploadFile(ctx, a.httpClient, a.baseURL+"/v1/files", header,
			"file", path, map[string]string{"purpose": "user_data"})
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

func (a *Adapter) buildInput(prompt adapters.Prompt, fileIDs []string) []any {
	turns := prompt.List()
	messages := make([]any, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, map[string]any{
			"role":    "user",
			"content": []any{map[string]any{"type": "input_text", "text": turn}},
		})
	}
	if len(messages) == 0 {
		messages = append(messages, map[string]any{
			"role":    "user",
			"content": []any{map[string]any{"type": "input_text", "text": ""}},
		})
	}

	if len(fileIDs) > 0 {
		last := messages[len(messages)-1].(map[string]any)
		content := last["content"].([]any)
		for _, id := range fileIDs {
			content = append(content, map[string]any{"type": "input_file", "file_id": id})
		}
		last["content"] = content
	}
	return messages
}

// extractText prefers the convenience output_text field when the provider
// populated it, then reassembles message output blocks.
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
		for _, part := range adapters.AsSlice(output["content"]) {
			m := adapters.AsMap(part)
			if adapters.Str(m, "type") == "output_text" {
				chunks = append(chunks, adapters.Str(m, "text"))
			}
		}
	}
	return strings.Join(chunks, "")
}

func extractCitations(raw map[string]any) []adapters.Citation {
	set := adapters.NewCitationSet()

	// Inline url_citation annotations on generated message text.
	for _, item := range adapters.AsSlice(raw["output"]) {
		output := adapters.AsMap(item)
		if adapters.Str(output, "type") != "message" {
			continue
		}
		for _, part := range adapters.AsSlice(output["content"]) {
			for _, ann := range adapters.AsSlice(adapters.AsMap(part)["annotations"]) {
				annotation := adapters.AsMap(ann)
				if annotation == nil {
					continue
				}
				urlCitation := adapters.AsMap(annotation["url_citation"])
				url := adapters.FirstStr(annotation, "url")
				if url == "" {
					url = adapters.Str(urlCitation, "url")
				}
				title := adapters.Str(annotation, "title")
				if title == "" {
					title = adapters.Str(urlCitation, "title")
				}
				start := adapters.FloatIndex(annotation["start_index"])
				if start == nil {
					start = adapters.FloatIndex(urlCitation["start_index"])
				}
				end := adapters.FloatIndex(annotation["end_index"])
				if end == nil {
					end = adapters.FloatIndex(urlCitation["end_index"])
				}
				set.Add(adapters.Citation{
					Provider:   "openai",
					URL:        url,
					Title:      title,
					Source:     url,
					StartIndex: start,
					EndIndex:   end,
					Raw:        annotation,
				})
			}
		}
	}

	// Full source list from the web_search_call action, when included.
	for _, item := range adapters.AsSlice(raw["output"]) {
		output := adapters.AsMap(item)
		if adapters.Str(output, "type") != "web_search_call" {
			continue
		}
		action := adapters.AsMap(output["action"])
		for _, srcItem := range adapters.AsSlice(action["sources"]) {
			src := adapters.AsMap(srcItem)
			if src == nil {
				continue
			}
			url := adapters.Str(src, "url")
			source := adapters.FirstStr(src, "type", "source")
			if source == "" {
				source = url
			}
			set.Add(adapters.Citation{
				Provider: "openai",
				URL:      url,
				Title:    adapters.Str(src, "title"),
				Source:   source,
				Raw:      src,
			})
		}
	}

	return set.List()
}
