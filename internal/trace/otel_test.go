package trace

import (
	"context"
	"testing"
)

func TestSetupDisabledByDefault(t *testing.T) {
	t.Setenv("SIMPLEAI_TRACE_ENABLED", "")

	rt, err := SetupFromEnv("simpleai-test")
	if err != nil {
		t.Fatalf("SetupFromEnv: %v", err)
	}
	if rt.Tracer == nil || rt.Shutdown == nil {
		t.Fatalf("disabled runtime must still be usable: %+v", rt)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestZeroRuntimeStartsNoopSpan(t *testing.T) {
	var rt Runtime
	ctx, span := rt.StartSpan(context.Background(), "simpleai.run_prompt", "openai", "gpt-5.2")
	if ctx == nil || span == nil {
		t.Fatalf("expected usable no-op span")
	}
	span.End()
}

func TestEnvBoolForms(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, " on ": true,
		"": false, "0": false, "off": false, "enabled": false,
	}
	for value, want := range cases {
		t.Setenv("SIMPLEAI_TRACE_ENABLED", value)
		if got := envBool("SIMPLEAI_TRACE_ENABLED"); got != want {
			t.Errorf("envBool(%q) = %v, want %v", value, got, want)
		}
	}
}
