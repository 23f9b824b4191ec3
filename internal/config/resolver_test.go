package config

import (
	"testing"

	"github.com/dsado88/squall/internal/dispatch"
)

func TestResolve_BuildsSortedEntries(t *testing.T) {
	cfg := validConfig()
	entries, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key > entries[i].Key {
			t.Fatalf("entries not sorted: %q before %q", entries[i-1].Key, entries[i].Key)
		}
	}
}

func TestResolve_HTTPBackend(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := validConfig()
	entries, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var gpt dispatch.ModelEntry
	for _, e := range entries {
		if e.Key == "gpt-fast" {
			gpt = e
		}
	}
	if gpt.Backend.Kind != dispatch.BackendHTTP {
		t.Fatalf("kind = %v, want http", gpt.Backend.Kind)
	}
	if gpt.Backend.HTTP.APIKey != "sk-test" {
		t.Errorf("api key = %q, want sk-test", gpt.Backend.HTTP.APIKey)
	}
}

func TestResolve_EnvDisableOverride(t *testing.T) {
	t.Setenv("SQUALL_MODEL_GPT_FAST_DISABLED", "true")
	cfg := validConfig()
	entries, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range entries {
		if e.Key == "gpt-fast" && !e.Disabled {
			t.Error("expected gpt-fast to be disabled via env override")
		}
	}
}

func TestResolve_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Models[0].Backend = "carrier-pigeon"
	if _, err := Resolve(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestResolveLimits_Defaults(t *testing.T) {
	cfg := validConfig()
	limits := ResolveLimits(cfg)
	if limits.HTTP != 0 || limits.CLI != 0 || limits.AsyncPoll != 0 {
		t.Errorf("expected zero-value limits when unset, got %+v", limits)
	}
}

func TestResolveLimits_Override(t *testing.T) {
	cfg := validConfig()
	cfg.Limits = &LimitsConfig{HTTP: 16, CLI: 2, AsyncPoll: 6}
	limits := ResolveLimits(cfg)
	if limits.HTTP != 16 || limits.CLI != 2 || limits.AsyncPoll != 6 {
		t.Errorf("unexpected limits: %+v", limits)
	}
}
