// Package anthropic adapts the uniform prompt contract to the Anthropic
// Messages API, including rate-limit backoff and the search/citation
// follow-up calls the API sometimes needs.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/aierr"
	"github.com/blocher/simpleai/pkg/schema"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	webSearchTool    = "web_search_20250305"
	missingRetryWait = 60 * time.Second
)

// Adapter implements adapters.Adapter for Anthropic.
type Adapter struct {
	apiKey     string
	baseURL    string
	settings   map[string]any
	httpClient *http.Client
	hooks      adapters.Hooks
	sleep      func(ctx context.Context, d time.Duration) error
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
		sleep:      sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (a *Adapter) Name() string { return "claude" }

func (a *Adapter) SupportsBinaryFiles() bool { return false }

func (a *Adapter) Run(ctx context.Context, req adapters.Request) (*adapters.Response, error) {
	// Files are unsupported here; the orchestrator passes extracted text
	// inside the prompt instead.
	resp, err := a.run(ctx, req)
	if err != nil {
		if aierr.IsLibraryError(err) {
			return nil, err
		}
		return nil, aierr.ProviderWrap(err, "anthropic adapter failed: %v", err)
	}
	return resp, nil
}

func (a *Adapter) run(ctx context.Context, req adapters.Request) (*adapters.Response, error) {
	payload := map[string]any{
		"model":      req.Model,
		"max_tokens": adapters.IntOpt(a.settings, "max_tokens", 4096),
		"messages":   buildMessages(req.Prompt),
	}

	if req.RequireSearch {
		payload["tools"] = []any{map[string]any{"name": "web_search", "type": webSearchTool}}
		payload["tool_choice"] = map[string]any{"type": "any"}
	}

	if req.Schema != nil {
		payload["output_config"] = outputConfig(req.Schema)
	}

	adapters.MergeOptions(payload, req.Options, req.RequireSearch)

	raw, err := a.callWithBackoff(ctx, payload)
	if err != nil {
		return nil, err
	}

	text := extractText(raw)
	set := adapters.NewCitationSet()
	if req.ReturnCitations {
		set.Merge(extractCitations(raw))
	}

	// A forced search turn can come back with only tool-result blocks. One
	// synthesis follow-up asks the model to produce the final answer from the
	// already-gathered results.
	if text == "" && req.RequireSearch && hasWebSearchResult(raw) {
		a.hooks.OnFollowup(a.Name(), "synthesis")
		synthesisRaw, synthErr := a.synthesize(ctx, req, raw)
		if synthErr != nil {
			return nil, synthErr
		}
		text = extractText(synthesisRaw)
		if req.ReturnCitations {
			set.Merge(extractCitations(synthesisRaw))
		}
		if text != "" {
			raw = synthesisRaw
		}
	}

	// Last resort for schema runs: some schema-shaped outputs surface as
	// tool-style input blocks.
	if text == "" && req.Schema != nil {
		text = toolInputJSON(raw)
	}

	// A structured-output schema can suppress citation blocks entirely. One
	// search-only follow-up (no schema attached) grounds the produced answer.
	if req.ReturnCitations && req.RequireSearch && req.Schema != nil &&
		len(set.List()) == 0 && !adapters.BoolOpt(a.settings, "skip_citation_followup", false) {
		a.hooks.OnFollowup(a.Name(), "citations")
		followupRaw, followErr := a.citationFollowup(ctx, req, text)
		if followErr == nil {
			set.Merge(extractCitations(followupRaw))
		}
	}

	var citations []adapters.Citation
	if req.ReturnCitations {
		citations = set.List()
	}
	return &adapters.Response{Text: text, Citations: citations, Raw: raw}, nil
}

// callWithBackoff posts one Messages API payload, retrying rate limits up to
// max_retries times. Wait time follows the server's Retry-After header plus
// one second, or 60 seconds when the header is absent.
func (a *Adapter) callWithBackoff(ctx context.Context, payload map[string]any) (map[string]any, error) {
	maxRetries := adapters.IntOpt(a.settings, "max_retries", 3)

	var lastErr error
	for attempt := 0; ; attempt++ {
		hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		hReq.Header.Set("x-api-key", a.apiKey)
		hReq.Header.Set("anthropic-version", apiVersion)

		body, err := adapters.DoJSON(ctx, a.httpClient, hReq, payload)
		if err == nil {
			return adapters.ParseJSONMap(body), nil
		}
		lastErr = err

		var apiErr *adapters.APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRateLimit() || attempt >= maxRetries {
			return nil, lastErr
		}

		wait := missingRetryWait
		if retryAfter, ok := apiErr.RetryAfter(); ok {
			wait = retryAfter + time.Second
		}
		a.hooks.OnRetry(a.Name())
		if err := a.sleep(ctx, wait); err != nil {
			return nil, lastErr
		}
	}
}

func (a *Adapter) synthesize(ctx context.Context, req adapters.Request, firstRaw map[string]any) (map[string]any, error) {
	synthesisText := fmt.Sprintf(
		"%s\n\nWeb search results already gathered:\n%s\n\nReturn the final answer now. If a JSON schema is required, return only valid JSON.",
		req.Prompt.String(),
		renderSearchContext(firstRaw),
	)

	payload := map[string]any{
		"model":      req.Model,
		"max_tokens": adapters.IntOpt(a.settings, "max_tokens", 4096),
		"messages": []any{map[string]any{
			"role":    "user",
			"content": []any{map[string]any{"type": "text", "text": synthesisText}},
		}},
	}
	if req.Schema != nil {
		payload["output_config"] = outputConfig(req.Schema)
	}
	// Caller overrides pass through, minus tool wiring: the synthesis turn
	// must not trigger another search.
	for key, value := range req.Options {
		if key == "tools" || key == "tool_choice" {
			continue
		}
		payload[key] = value
	}

	return a.callWithBackoff(ctx, payload)
}

func (a *Adapter) citationFollowup(ctx context.Context, req adapters.Request, answer string) (map[string]any, error) {
	followupText := fmt.Sprintf(
		"%s\n\nThis answer was already produced:\n%s\n\nUse web search to find the sources that ground it and cite them.",
		req.Prompt.String(),
		answer,
	)

	// No output schema here: attaching one is what suppressed the citation
	// blocks in the first place.
	payload := map[string]any{
		"model":      req.Model,
		"max_tokens": adapters.IntOpt(a.settings, "max_tokens", 4096),
		"messages": []any{map[string]any{
			"role":    "user",
			"content": []any{map[string]any{"type": "text", "text": followupText}},
		}},
		"tools":       []any{map[string]any{"name": "web_search", "type": webSearchTool}},
		"tool_choice": map[string]any{"type": "any"},
	}
	return a.callWithBackoff(ctx, payload)
}

func outputConfig(callerSchema map[string]any) map[string]any {
	return map[string]any{
		"format": map[string]any{
			"type":   "json_schema",
			"schema": schema.ForAnthropic(callerSchema),
		},
	}
}

func buildMessages(prompt adapters.Prompt) []any {
	turns := prompt.List()
	messages := make([]any, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, map[string]any{
			"role":    "user",
			"content": []any{map[string]any{"type": "text", "text": turn}},
		})
	}
	if len(messages) == 0 {
		messages = append(messages, map[string]any{
			"role":    "user",
			"content": []any{map[string]any{"type": "text", "text": ""}},
		})
	}
	return messages
}

func extractText(raw map[string]any) string {
	var texts []string
	for _, item := range adapters.AsSlice(raw["content"]) {
		block := adapters.AsMap(item)
		if adapters.Str(block, "type") != "text" {
			continue
		}
		if text := adapters.Str(block, "text"); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

func extractCitations(raw map[string]any) []adapters.Citation {
	set := adapters.NewCitationSet()

	for _, item := range adapters.AsSlice(raw["content"]) {
		block := adapters.AsMap(item)
		switch adapters.Str(block, "type") {
		case "text":
			for _, citItem := range adapters.AsSlice(block["citations"]) {
				cit := adapters.AsMap(citItem)
				if cit == nil {
					continue
				}
				sourceObj := adapters.AsMap(cit["source"])
				url := adapters.Str(cit, "url")
				if url == "" {
					url = adapters.Str(sourceObj, "url")
				}
				title := adapters.Str(cit, "title")
				if title == "" {
					title = adapters.Str(sourceObj, "title")
				}
				source := url
				if source == "" {
					source = adapters.Str(sourceObj, "source")
				}
				set.Add(adapters.Citation{
					Provider: "claude",
					URL:      url,
					Title:    title,
					Source:   source,
					Snippet:  adapters.Str(cit, "cited_text"),
					Raw:      cit,
				})
			}
		case "web_search_tool_result":
			// content may be a single object or a list.
			for _, resultItem := range adapters.AsSlice(block["content"]) {
				result := adapters.AsMap(resultItem)
				if result == nil {
					continue
				}
				url := adapters.Str(result, "url")
				set.Add(adapters.Citation{
					Provider: "claude",
					URL:      url,
					Title:    adapters.Str(result, "title"),
					Source:   url,
					Raw:      result,
				})
			}
		}
	}

	return set.List()
}

func hasWebSearchResult(raw map[string]any) bool {
	for _, item := range adapters.AsSlice(raw["content"]) {
		if adapters.Str(adapters.AsMap(item), "type") == "web_search_tool_result" {
			return true
		}
	}
	return false
}

func renderSearchContext(raw map[string]any) string {
	var lines []string
	for _, item := range adapters.AsSlice(raw["content"]) {
		block := adapters.AsMap(item)
		if adapters.Str(block, "type") != "web_search_tool_result" {
			continue
		}
		for _, resultItem := range adapters.AsSlice(block["content"]) {
			result := adapters.AsMap(resultItem)
			var parts []string
			for _, key := range []string{"title", "url", "page_age"} {
				if v := adapters.Str(result, key); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) > 0 {
				lines = append(lines, strings.Join(parts, " | "))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func toolInputJSON(raw map[string]any) string {
	for _, item := range adapters.AsSlice(raw["content"]) {
		block := adapters.AsMap(item)
		blockType := adapters.Str(block, "type")
		if blockType != "tool_use" && blockType != "server_tool_use" {
			continue
		}
		input := adapters.AsMap(block["input"])
		if input == nil {
			continue
		}
		b, err := json.Marshal(input)
		if err != nil {
			continue
		}
		return string(b)
	}
	return ""
}
