package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blocher/simpleai/pkg/adapters"
)

func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	a, err := New(map[string]any{"api_key": "test-key", "base_url": srv.URL}, srv.Client(), adapters.Hooks{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(nil, nil, adapters.Hooks{})
	if !errors.Is(err, adapters.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestRunBuildsGenerateContentRequest(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1beta/models/gemini-3-pro-preview:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not on query string")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "bonjour"}]}}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	resp, err := a.Run(context.Background(), adapters.Request{
		Prompt:        adapters.Turns("first turn", "second turn"),
		Model:         "gemini-3-pro-preview",
		RequireSearch: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Text != "bonjour" {
		t.Fatalf("text = %q", resp.Text)
	}

	tools := captured["tools"].([]any)
	if _, ok := tools[0].(map[string]any)["google_search"]; !ok {
		t.Fatalf("google_search tool missing: %v", tools)
	}
	if _, ok := captured["systemInstruction"]; !ok {
		t.Fatalf("search nudge system instruction missing")
	}

	contents := captured["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected one part per turn, got %v", parts)
	}
}

func TestRunSchemaUsesResponseSchemaUntouched(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "{}"}]}}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	_, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Text("structured"),
		Model:  "gemini-3-pro-preview",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"n": map[string]any{"type": "integer", "maximum": 5}},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	gen := captured["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" {
		t.Fatalf("mime type = %v", gen["responseMimeType"])
	}
	sent := gen["responseSchema"].(map[string]any)
	// Gemini accepts range keywords; the schema passes through unmodified.
	n := sent["properties"].(map[string]any)["n"].(map[string]any)
	if n["maximum"] != float64(5) && n["maximum"] != 5 {
		t.Fatalf("maximum stripped from gemini schema: %v", n)
	}
	if _, closed := sent["additionalProperties"]; closed {
		t.Fatalf("gemini schema must not be force-closed: %v", sent)
	}
}

func TestRunExtractsGroundingCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [{
			"content": {"parts": [{"text": "answer"}]},
			"citationMetadata": {"citations": [
				{"uri": "https://inline.example", "startIndex": 0, "endIndex": 6}
			]},
			"groundingMetadata": {
				"groundingChunks": [
					{"web": {"uri": "https://web.example", "title": "Web", "domain": "web.example"}},
					{"retrievedContext": {"uri": "https://doc.example", "title": "Doc", "text": "snippet text"}},
					{"maps": {"uri": "https://maps.example", "title": "Place"}}
				],
				"webSearchQueries": ["what is the answer"]
			}
		}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	resp, err := a.Run(context.Background(), adapters.Request{
		Prompt:          adapters.Text("cite"),
		Model:           "gemini-3-pro-preview",
		RequireSearch:   true,
		ReturnCitations: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(resp.Citations) != 5 {
		t.Fatalf("expected 5 citations, got %d: %+v", len(resp.Citations), resp.Citations)
	}

	inline := resp.Citations[0]
	if inline.URL != "https://inline.example" || inline.StartIndex == nil || *inline.EndIndex != 6 {
		t.Fatalf("inline citation = %+v", inline)
	}
	web := resp.Citations[1]
	if web.Source != "web.example" || web.Title != "Web" {
		t.Fatalf("web chunk = %+v", web)
	}
	doc := resp.Citations[2]
	if doc.Snippet != "snippet text" {
		t.Fatalf("retrieved context = %+v", doc)
	}
	maps := resp.Citations[3]
	if maps.Source != "google_maps" {
		t.Fatalf("maps chunk = %+v", maps)
	}
	query := resp.Citations[4]
	if query.Source != "google_search_query" || query.Snippet != "what is the answer" {
		t.Fatalf("search query provenance = %+v", query)
	}
}

func TestRunSnakeCaseGroundingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [{
			"content": {"parts": [{"text": "x"}]},
			"grounding_metadata": {"grounding_chunks": [
				{"web": {"url": "https://snake.example", "title": "Snake"}}
			]}
		}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	resp, err := a.Run(context.Background(), adapters.Request{
		Prompt:          adapters.Text("cite"),
		Model:           "gemini-3-pro-preview",
		ReturnCitations: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].URL != "https://snake.example" {
		t.Fatalf("citations = %+v", resp.Citations)
	}
}

func TestRunProviderErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request"}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	_, err := a.Run(context.Background(), adapters.Request{
		Prompt: adapters.Text("fail"),
		Model:  "gemini-3-pro-preview",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *adapters.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsInvalidRequest() {
		t.Fatalf("cause not preserved: %v", err)
	}
}
