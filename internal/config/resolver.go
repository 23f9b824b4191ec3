package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/registry"
)

// Resolve converts the decoded Config into the sorted slice of
// dispatch.ModelEntry the registry consumes, pulling each backend's API
// key from its configured environment variable.
func Resolve(cfg *Config) ([]dispatch.ModelEntry, error) {
	entries := make([]dispatch.ModelEntry, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		entry, err := resolveModel(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b dispatch.ModelEntry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		default:
			return 0
		}
	})
	return entries, nil
}

func resolveModel(m ModelConfig) (dispatch.ModelEntry, error) {
	entry := dispatch.ModelEntry{
		Key:           m.Key,
		ProviderID:    m.ProviderID,
		Provider:      m.Provider,
		Parser:        m.Parser,
		SpeedTier:     m.SpeedTier,
		PrecisionTier: m.PrecisionTier,
		Strengths:     m.Strengths,
		Weaknesses:    m.Weaknesses,
		Disabled:      m.Disabled,
	}

	if envDisabled(m.Key) {
		entry.Disabled = true
	}

	switch dispatch.BackendKind(m.Backend) {
	case dispatch.BackendHTTP:
		if m.HTTP == nil {
			return entry, fmt.Errorf("config: model %q: backend http requires an http: section", m.Key)
		}
		entry.Backend = dispatch.BackendVariant{
			Kind: dispatch.BackendHTTP,
			HTTP: &dispatch.HTTPBackend{
				BaseURL:   m.HTTP.BaseURL,
				APIKey:    os.Getenv(m.HTTP.APIKeyEnv),
				APIKeyEnv: m.HTTP.APIKeyEnv,
				Format:    dispatch.APIFormat(m.HTTP.Format),
			},
		}
	case dispatch.BackendCLI:
		if m.CLI == nil {
			return entry, fmt.Errorf("config: model %q: backend cli requires a cli: section", m.Key)
		}
		entry.Backend = dispatch.BackendVariant{
			Kind: dispatch.BackendCLI,
			CLI: &dispatch.CLIBackend{
				Executable: m.CLI.Executable,
				Args:       m.CLI.Args,
			},
		}
	case dispatch.BackendAsyncPoll:
		if m.Async == nil {
			return entry, fmt.Errorf("config: model %q: backend async_poll requires an async: section", m.Key)
		}
		entry.Backend = dispatch.BackendVariant{
			Kind: dispatch.BackendAsyncPoll,
			Async: &dispatch.AsyncPollBackend{
				Provider:  dispatch.AsyncProvider(m.Async.Provider),
				APIKey:    os.Getenv(m.Async.APIKeyEnv),
				APIKeyEnv: m.Async.APIKeyEnv,
				BaseURL:   m.Async.BaseURL,
			},
		}
	default:
		return entry, fmt.Errorf("config: model %q: unknown backend %q", m.Key, m.Backend)
	}

	return entry, nil
}

// envDisabled checks the per-model kill switch
// (registry.EnvDisableVarName) at config-load time, matching the
// registry's own check so a disabled model is never even constructed.
func envDisabled(key string) bool {
	v, ok := os.LookupEnv(registry.EnvDisableVarName(key))
	if !ok {
		return false
	}
	return v == "1" || v == "true"
}

// ResolveLimits converts the optional YAML limits block into
// registry.ClassLimits, zero values left to registry defaults.
func ResolveLimits(cfg *Config) registry.ClassLimits {
	if cfg.Limits == nil {
		return registry.ClassLimits{}
	}
	return registry.ClassLimits{
		HTTP:      cfg.Limits.HTTP,
		CLI:       cfg.Limits.CLI,
		AsyncPoll: cfg.Limits.AsyncPoll,
	}
}
