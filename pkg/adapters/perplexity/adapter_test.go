package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blocher/simpleai/pkg/adapters"
)

func newTestAdapter(t *testing.T, srv *httptest.Server, hooks adapters.Hooks) *Adapter {
	t.Helper()
	a, err := New(map[string]any{"api_key": "test-key", "base_url": srv.URL}, srv.Client(), hooks)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(map[string]any{}, nil, adapters.Hooks{})
	if !errors.Is(err, adapters.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestResolveModelTarget(t *testing.T) {
	cases := []struct {
		model      string
		wantKey    string
		wantTarget string
	}{
		{"sonar", "preset", "fast-search"},
		{"sonar-pro", "preset", "pro-search"},
		{"sonar-reasoning", "preset", "pro-search"},
		{"sonar-reasoning-pro", "preset", "deep-research"},
		{"sonar-deep-research", "preset", "deep-research"},
		{"fast-search", "preset", "fast-search"},
		{"pro-search", "preset", "pro-search"},
		{"deep-research", "preset", "deep-research"},
		{"gpt-5.2", "model", "openai/gpt-5.2"},
		{"o3-mini", "model", "openai/o3-mini"},
		{"claude-opus-4-6", "model", "anthropic/claude-opus-4-6"},
		{"gemini-3-pro-preview", "model", "google/gemini-3-pro-preview"},
		{"grok-4-latest", "model", "xai/grok-4-latest"},
		{"sonar-unknown-variant", "model", "perplexity/sonar-unknown-variant"},
		{"perplexity/deep-research", "model", "perplexity/deep-research"},
		{"openai/gpt-5.2", "model", "openai/gpt-5.2"},
		{"mystery-model", "model", "mystery-model"},
	}

	for _, tc := range cases {
		key, target := ResolveModelTarget(tc.model)
		if key != tc.wantKey || target != tc.wantTarget {
			t.Errorf("ResolveModelTarget(%q) = %q %q, want %q %q",
				tc.model, key, target, tc.wantKey, tc.wantTarget)
		}
	}
}

func TestRunSendsPresetForAliasModel(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"output_text": "deep answer"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, adapters.Hooks{})
	resp, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Text("research this"),
		Model:  "sonar-pro",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Text != "deep answer" {
		t.Fatalf("text = %q", resp.Text)
	}

	if captured["preset"] != "pro-search" {
		t.Fatalf("preset = %v", captured["preset"])
	}
	if _, hasModel := captured["model"]; hasModel {
		t.Fatalf("preset runs must not also send a model")
	}
	if captured["input"] != "research this" {
		t.Fatalf("input = %v", captured["input"])
	}
}

func TestRunListPromptBecomesMessages(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"output_text": "ok"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, adapters.Hooks{})
	_, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Turns("one", "two"),
		Model:  "fast-search",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	input := captured["input"].([]any)
	if len(input) != 2 {
		t.Fatalf("input = %v", input)
	}
	first := input[0].(map[string]any)
	if first["type"] != "message" || first["role"] != "user" || first["content"] != "one" {
		t.Fatalf("first message = %v", first)
	}
}

func TestRunSchemaRejectionRetriesOnceWithoutSchema(t *testing.T) {
	calls := 0
	var payloads []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		payloads = append(payloads, payload)

		if _, hasSchema := payload["response_format"]; hasSchema {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "response_format unsupported for this model"}`))
			return
		}
		w.Write([]byte(`{"output_text": "unstructured fallback"}`))
	}))
	defer srv.Close()

	retries := 0
	a := newTestAdapter(t, srv, adapters.Hooks{Retry: func(string) { retries++ }})

	resp, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Text("structured"),
		Model:  "deep-research",
		Schema: map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Text != "unstructured fallback" {
		t.Fatalf("text = %q", resp.Text)
	}
	if calls != 2 || retries != 1 {
		t.Fatalf("calls = %d, retries = %d", calls, retries)
	}
	if _, hasSchema := payloads[1]["response_format"]; hasSchema {
		t.Fatalf("retry must drop the schema")
	}
}

func TestRunSchemaRejectionRetryFailureSurfaces(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "still bad"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, adapters.Hooks{})
	_, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Text("structured"),
		Model:  "deep-research",
		Schema: map[string]any{"type": "object"},
	})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
}

func TestRunServerErrorDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, adapters.Hooks{})
	_, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Text("x"),
		Model:  "deep-research",
		Schema: map[string]any{"type": "object"},
	})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if calls != 1 {
		t.Fatalf("5xx must not trigger the schema retry, got %d calls", calls)
	}
}

func TestRunExtractsAnnotationAndSearchResultCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"output": [
				{"type": "message", "content": [{
					"type": "output_text",
					"text": "answer",
					"annotations": [
						{"url": "https://a.example", "title": "A", "start_index": 1, "end_index": 4}
					]
				}]},
				{"type": "search_results", "results": [
					{"url": "https://b.example", "title": "B", "snippet": "about b", "source": "b.example"},
					{"url": "https://b.example", "title": "B", "snippet": "about b", "source": "b.example"}
				]}
			]
		}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv, adapters.Hooks{})
	resp, err := a.Run(context.Background(), adapters.Request{
		Prompt:          adapters.Text("cite"),
		Model:           "pro-search",
		RequireSearch:   true,
		ReturnCitations: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Text != "answer" {
		t.Fatalf("text = %q", resp.Text)
	}

	if len(resp.Citations) != 2 {
		t.Fatalf("expected 2 deduped citations, got %d: %+v", len(resp.Citations), resp.Citations)
	}
	ann := resp.Citations[0]
	if ann.URL != "https://a.example" || ann.StartIndex == nil || *ann.StartIndex != 1 {
		t.Fatalf("annotation citation = %+v", ann)
	}
	result := resp.Citations[1]
	if result.Source != "b.example" || result.Snippet != "about b" {
		t.Fatalf("search result citation = %+v", result)
	}
}
