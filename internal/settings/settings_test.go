package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/blocher/simpleai/pkg/aierr"
)

func TestDeepMergeMergesNestedAndReplacesScalars(t *testing.T) {
	base := map[string]any{
		"defaults": []any{"gemini"},
		"providers": map[string]any{
			"openai": map[string]any{"default_model": "gpt-5.2", "max_output_tokens": 8192},
		},
	}
	override := map[string]any{
		"defaults": []any{"openai"},
		"providers": map[string]any{
			"openai": map[string]any{"default_model": "gpt-5.2-mini"},
		},
	}

	merged := DeepMerge(base, override)

	if !reflect.DeepEqual(merged["defaults"], []any{"openai"}) {
		t.Fatalf("lists replace, not merge: %v", merged["defaults"])
	}
	openai := merged["providers"].(map[string]any)["openai"].(map[string]any)
	if openai["default_model"] != "gpt-5.2-mini" {
		t.Fatalf("override lost: %v", openai)
	}
	if openai["max_output_tokens"] != 8192 {
		t.Fatalf("untouched base field lost: %v", openai)
	}

	override["providers"].(map[string]any)["openai"].(map[string]any)["default_model"] = "mutated"
	if openai["default_model"] != "gpt-5.2-mini" {
		t.Fatalf("merge result shares memory with inputs")
	}
}

func TestCanonicalProviderAliases(t *testing.T) {
	cases := map[string]string{
		"google":       "gemini",
		"Anthropic":    "claude",
		"chatgpt":      "openai",
		"xai":          "grok",
		"perplexityai": "perplexity",
		" claude ":     "claude",
		"unknown":      "",
	}
	for in, want := range cases {
		if got := CanonicalProvider(in); got != want {
			t.Errorf("CanonicalProvider(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadFileNormalizesAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai_settings.json")
	content := `{
		"defaults": ["anthropic", "google", "anthropic"],
		"providers": {"anthropic": {"default_model": "claude-opus-4-6"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := s.DefaultProviders(); !reflect.DeepEqual(got, []string{"claude", "gemini"}) {
		t.Fatalf("defaults = %v", got)
	}
	cfg, err := s.ProviderConfig("claude")
	if err != nil {
		t.Fatalf("ProviderConfig: %v", err)
	}
	if cfg["default_model"] != "claude-opus-4-6" {
		t.Fatalf("provider config not keyed canonically: %v", cfg)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai_settings.yaml")
	content := "defaults:\n  - grok\nproviders:\n  grok:\n    default_model: grok-4-latest\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.DefaultProviders(); len(got) != 1 || got[0] != "grok" {
		t.Fatalf("defaults = %v", got)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), nil)
	if !aierr.IsKind(err, aierr.KindSettings) {
		t.Fatalf("expected settings error, got %v", err)
	}
}

func TestLoadEnvFileOptional(t *testing.T) {
	t.Setenv(EnvSettingsFile, filepath.Join(t.TempDir(), "absent.json"))
	s, err := Load("", nil)
	if err != nil {
		t.Fatalf("env-pointed missing file should fall back to defaults: %v", err)
	}
	if len(s.DefaultProviders()) == 0 {
		t.Fatalf("defaults missing")
	}
}

func TestLoadOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai_settings.json")
	if err := os.WriteFile(path, []byte(`{"logging": {"enabled": true}}`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := Load(path, map[string]any{"logging": map[string]any{"enabled": false}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Logging()["enabled"] != false {
		t.Fatalf("override layer must win: %v", s.Logging())
	}
}

func TestAPIKeyResolutionOrder(t *testing.T) {
	for _, envVar := range ExpectedEnvVars("grok") {
		t.Setenv(envVar, "")
	}

	s := Settings(Defaults())
	if got := s.APIKey("grok"); got != "" {
		t.Fatalf("expected missing key, got %q", got)
	}

	t.Setenv("GROK_API_KEY", "from-fallback-env")
	if got := s.APIKey("grok"); got != "from-fallback-env" {
		t.Fatalf("fallback env var not honored: %q", got)
	}
	t.Setenv("XAI_API_KEY", "from-primary-env")
	if got := s.APIKey("grok"); got != "from-primary-env" {
		t.Fatalf("primary env var must win: %q", got)
	}

	merged, err := Load("", map[string]any{
		"providers": map[string]any{"grok": map[string]any{"api_key": "from-settings"}},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := merged.APIKey("grok"); got != "from-settings" {
		t.Fatalf("configured key must beat env vars: %q", got)
	}
}

func TestExpectedEnvVars(t *testing.T) {
	want := map[string][]string{
		"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"claude":     {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
		"openai":     {"OPENAI_API_KEY"},
		"grok":       {"XAI_API_KEY", "GROK_API_KEY"},
		"perplexity": {"PERPLEXITY_API_KEY", "PPLX_API_KEY"},
	}
	for provider, vars := range want {
		if got := ExpectedEnvVars(provider); !reflect.DeepEqual(got, vars) {
			t.Errorf("ExpectedEnvVars(%q) = %v, want %v", provider, got, vars)
		}
	}
}

func TestProviderConfigInvalidShape(t *testing.T) {
	s := Settings{"providers": map[string]any{"openai": "not a mapping"}}
	_, err := s.ProviderConfig("openai")
	if !aierr.IsKind(err, aierr.KindSettings) {
		t.Fatalf("expected settings error, got %v", err)
	}
}
