// Package simpleai is the public entry point: one uniform call across the
// OpenAI, Anthropic, Gemini, Grok, and Perplexity adapters.
package simpleai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/blocher/simpleai/internal/files"
	"github.com/blocher/simpleai/internal/metrics"
	"github.com/blocher/simpleai/internal/models"
	"github.com/blocher/simpleai/internal/promptlog"
	"github.com/blocher/simpleai/internal/settings"
	"github.com/blocher/simpleai/internal/trace"
	"github.com/blocher/simpleai/pkg/adapters"
	"github.com/blocher/simpleai/pkg/adapters/registry"
	"github.com/blocher/simpleai/pkg/aierr"
	"go.opentelemetry.io/otel/codes"
)

// Prompt re-exports the adapter prompt type for callers.
type Prompt = adapters.Prompt

// Text builds a single-string prompt.
func Text(s string) Prompt { return adapters.Text(s) }

// Turns builds a multi-turn prompt.
func Turns(turns ...string) Prompt { return adapters.Turns(turns...) }

// Runner carries the injectable collaborators of RunPrompt. The zero value is
// usable; package-level RunPrompt uses a shared default.
type Runner struct {
	HTTPClient *http.Client
	Extractor  files.Extractor
	Metrics    *metrics.Recorder
	Trace      trace.Runtime
}

var defaultRunner = &Runner{}

// RunPrompt executes one prompt with the default runner.
func RunPrompt(ctx context.Context, prompt Prompt, opts Options) (*Result, error) {
	return defaultRunner.RunPrompt(ctx, prompt, opts)
}

// RunPrompt resolves provider and model, prepares the prompt and attachments,
// invokes the adapter, and coerces the output. Settings are loaded fresh per
// call.
func (r *Runner) RunPrompt(ctx context.Context, prompt Prompt, opts Options) (*Result, error) {
	result, err := r.run(ctx, prompt, opts)
	if err != nil {
		if aierr.IsLibraryError(err) {
			return nil, err
		}
		return nil, aierr.General(err, "run_prompt failed (%T): %v", err, err)
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, prompt Prompt, opts Options) (*Result, error) {
	requireSearch, err := coerceBool("require_search", opts.RequireSearch, false)
	if err != nil {
		return nil, err
	}
	returnCitations, err := coerceBool("return_citations", opts.ReturnCitations, requireSearch)
	if err != nil {
		return nil, err
	}
	binaryFiles, err := coerceBool("binary_files", opts.BinaryFiles, true)
	if err != nil {
		return nil, err
	}
	// Citations only make sense over search-grounded context.
	requireSearch = requireSearch || returnCitations

	cfg, err := settings.Load(opts.SettingsFile, opts.SettingsOverride)
	if err != nil {
		return nil, err
	}

	provider, model, err := models.Resolve(cfg, opts.Model)
	if err != nil {
		return nil, err
	}

	providerCfg, err := cfg.ProviderConfig(provider)
	if err != nil {
		return nil, err
	}
	apiKey := cfg.APIKey(provider)
	if apiKey == "" {
		return nil, aierr.Settings(
			"no API key configured for provider %q; set one of %s in the environment or in the settings file",
			provider, strings.Join(settings.ExpectedEnvVars(provider), ", "))
	}
	providerCfg["api_key"] = apiKey

	adapter, err := registry.Build(provider, providerCfg, r.HTTPClient, adapters.Hooks{
		Retry:    func(p string) { r.Metrics.ObserveRetry(p) },
		Followup: func(p, kind string) { r.Metrics.ObserveFollowup(p, kind) },
	})
	if err != nil {
		return nil, err
	}

	paths, err := files.Collect(opts.File, opts.Files)
	if err != nil {
		return nil, err
	}
	var requestFiles []string
	if len(paths) > 0 {
		if binaryFiles && adapter.SupportsBinaryFiles() {
			requestFiles = paths
		} else {
			prompt, err = r.inlineFiles(prompt, paths)
			if err != nil {
				return nil, err
			}
		}
	}

	options := mergeCallOptions(opts.AdapterOptions, opts.Overrides)

	req := adapters.Request{
		Prompt:          prompt,
		Model:           model,
		RequireSearch:   requireSearch,
		ReturnCitations: returnCitations,
		Files:           requestFiles,
		Schema:          opts.OutputFormat.schemaMap(),
		SchemaName:      schemaName(opts.OutputFormat),
		Options:         options,
	}

	logger := promptlog.New(cfg.Logging())
	startedAt := time.Now()
	eventID := logger.Start(map[string]any{
		"prompt":           prompt.String(),
		"model":            opts.Model,
		"require_search":   requireSearch,
		"return_citations": returnCitations,
		"binary_files":     binaryFiles,
		"files":            paths,
		"output_format":    schemaName(opts.OutputFormat),
	}, map[string]any{
		"provider":    provider,
		"model":       model,
		"schema_name": req.SchemaName,
		"files":       len(requestFiles),
	})

	spanCtx, span := r.Trace.StartSpan(ctx, "simpleai.run_prompt", provider, model)
	resp, err := adapter.Run(spanCtx, req)
	elapsed := time.Since(startedAt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		r.Metrics.ObserveInvocation(provider, "error", elapsed)
		logger.Error(eventID, startedAt, err, map[string]any{
			"provider": provider,
			"model":    model,
		})
		return nil, err
	}
	span.End()
	r.Metrics.ObserveInvocation(provider, "ok", elapsed)

	value, err := decodeOutput(opts.OutputFormat, resp.Text)
	if err != nil {
		logger.Error(eventID, startedAt, err, map[string]any{
			"provider": provider,
			"model":    model,
		})
		return nil, err
	}

	result := &Result{Text: resp.Text, Value: value}
	if returnCitations {
		result.Citations = make([]map[string]any, 0, len(resp.Citations))
		for _, citation := range resp.Citations {
			result.Citations = append(result.Citations, citation.Map())
		}
	}

	logger.End(eventID, startedAt, resp.Text, len(resp.Citations))
	return result, nil
}

// inlineFiles appends extracted attachment text to the prompt as labeled
// blocks. List prompts gain one trailing turn; string prompts are
// concatenated.
func (r *Runner) inlineFiles(prompt Prompt, paths []string) (Prompt, error) {
	extractor := r.Extractor
	if extractor == nil {
		extractor = files.TextExtractor{}
	}
	extracted, err := extractor.Extract(paths)
	if err != nil {
		return Prompt{}, err
	}

	blocks := make([]string, 0, len(extracted))
	for _, item := range extracted {
		blocks = append(blocks, item.Block())
	}
	appended := strings.Join(blocks, "\n\n")

	if prompt.IsList() {
		return adapters.Turns(append(prompt.List(), appended)...), nil
	}
	return adapters.Text(prompt.String() + "\n\n" + appended), nil
}

func mergeCallOptions(adapterOptions, overrides map[string]any) map[string]any {
	if len(adapterOptions) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]any, len(adapterOptions)+len(overrides))
	for key, value := range adapterOptions {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	return merged
}

func schemaName(format *OutputFormat) string {
	if format == nil {
		return ""
	}
	return format.Name
}
