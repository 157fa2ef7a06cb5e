// Package smoke runs one structured, search-grounded prompt against every
// configured provider and reports per-provider outcomes.
package smoke

import (
	"context"
	"fmt"
	"time"

	"github.com/blocher/simpleai/internal/settings"
	"github.com/blocher/simpleai/pkg/adapters/registry"
	"github.com/blocher/simpleai/pkg/simpleai"
)

// Outcome statuses.
const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusNoKey = "NO-KEY"
)

// Outcome is one provider's smoke result.
type Outcome struct {
	Provider  string
	Status    string
	Detail    string
	Elapsed   time.Duration
	Citations int
}

// capitalFact is the structured answer the smoke prompt asks for.
type capitalFact struct {
	City    string `json:"city" description:"Capital city name"`
	Country string `json:"country" description:"Country the city is the capital of"`
}

const smokePrompt = "What is the capital of France? Answer from a current web source."

// Runner executes the smoke matrix. RunPrompt is swappable in tests.
type Runner struct {
	SettingsFile string
	RunPrompt    func(ctx context.Context, prompt simpleai.Prompt, opts simpleai.Options) (*simpleai.Result, error)
}

func (r Runner) runFunc() func(context.Context, simpleai.Prompt, simpleai.Options) (*simpleai.Result, error) {
	if r.RunPrompt != nil {
		return r.RunPrompt
	}
	return simpleai.RunPrompt
}

// Providers returns the matrix provider list: the given filter when non-empty,
// else every registered provider.
func Providers(filter []string) ([]string, error) {
	if len(filter) == 0 {
		return registry.Providers(), nil
	}
	out := make([]string, 0, len(filter))
	for _, name := range filter {
		canonical := settings.CanonicalProvider(name)
		if canonical == "" || !registry.Supported(canonical) {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		out = append(out, canonical)
	}
	return out, nil
}

// Matrix runs the smoke prompt against each provider in order.
func (r Runner) Matrix(ctx context.Context, providers []string) []Outcome {
	outcomes := make([]Outcome, 0, len(providers))
	for _, provider := range providers {
		outcomes = append(outcomes, r.Provider(ctx, provider))
	}
	return outcomes
}

// Provider runs the smoke prompt against one provider. A provider without an
// API key is reported, not attempted.
func (r Runner) Provider(ctx context.Context, provider string) Outcome {
	cfg, err := settings.Load(r.SettingsFile, nil)
	if err != nil {
		return Outcome{Provider: provider, Status: StatusFail, Detail: err.Error()}
	}
	if cfg.APIKey(provider) == "" {
		return Outcome{
			Provider: provider,
			Status:   StatusNoKey,
			Detail:   fmt.Sprintf("expected one of: %v", settings.ExpectedEnvVars(provider)),
		}
	}

	startedAt := time.Now()
	result, err := r.runFunc()(ctx, simpleai.Text(smokePrompt), simpleai.Options{
		Model:           provider,
		RequireSearch:   true,
		ReturnCitations: true,
		SettingsFile:    r.SettingsFile,
		OutputFormat: &simpleai.OutputFormat{
			Name: "capital_fact",
			New:  func() any { return &capitalFact{} },
		},
	})
	elapsed := time.Since(startedAt)
	if err != nil {
		return Outcome{Provider: provider, Status: StatusFail, Detail: err.Error(), Elapsed: elapsed}
	}

	fact, _ := result.Value.(*capitalFact)
	detail := result.Text
	if fact != nil {
		detail = fmt.Sprintf("%s, %s", fact.City, fact.Country)
	}
	return Outcome{
		Provider:  provider,
		Status:    StatusPass,
		Detail:    detail,
		Elapsed:   elapsed,
		Citations: len(result.Citations),
	}
}
