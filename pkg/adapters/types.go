package adapters

import "context"

// Request is a provider-agnostic prompt execution request.
type Request struct {
	Prompt          Prompt
	Model           string
	RequireSearch   bool
	ReturnCitations bool
	// Files holds local paths for binary attachment upload. The orchestrator
	// only sets it for adapters that report SupportsBinaryFiles; other
	// adapters receive nil and extracted file text inside the prompt instead.
	Files []string
	// Schema is the caller's structured-output JSON schema, or nil. Adapters
	// normalize their own copy and never mutate it.
	Schema     map[string]any
	SchemaName string
	// Options are caller payload overrides merged into the provider-native
	// request last, except tool keys stay protected while search is required.
	Options map[string]any
}

// Response is the normalized (text, citations, raw) triple every adapter
// returns. It is built once per Run call and never mutated afterwards.
type Response struct {
	Text      string
	Citations []Citation
	Raw       map[string]any
}

// Adapter is the common interface all provider adapters satisfy.
type Adapter interface {
	Name() string
	SupportsBinaryFiles() bool
	Run(ctx context.Context, req Request) (*Response, error)
}

// Hooks lets the orchestrator observe adapter-internal resilience events.
// Either field may be nil.
type Hooks struct {
	// Retry fires once per silent retry (rate limit, schema rejection).
	Retry func(provider string)
	// Followup fires once per extra provider round trip; kind is
	// "synthesis" or "citations".
	Followup func(provider string, kind string)
}

func (h Hooks) OnRetry(provider string) {
	if h.Retry != nil {
		h.Retry(provider)
	}
}

func (h Hooks) OnFollowup(provider string, kind string) {
	if h.Followup != nil {
		h.Followup(provider, kind)
	}
}
