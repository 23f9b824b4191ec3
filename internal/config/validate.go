package config

import (
	"errors"
	"fmt"

	"github.com/dsado88/squall/internal/dispatch"
)

// Validate checks the structural validity of a Config: version, presence
// of at least one model, per-backend required sections, and duplicate
// keys. It does not resolve API keys or touch the environment — that is
// Resolve's job.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Models) == 0 {
		errs = append(errs, errors.New("config: at least one model must be configured"))
	}

	seen := make(map[string]bool, len(cfg.Models))
	for i, m := range cfg.Models {
		errs = append(errs, validateModel(i, m)...)
		if m.Key != "" {
			if seen[m.Key] {
				errs = append(errs, fmt.Errorf("config: duplicate model key %q", m.Key))
			}
			seen[m.Key] = true
		}
	}

	errs = append(errs, validateSecurity(cfg.Security)...)

	return errors.Join(errs...)
}

func validateModel(i int, m ModelConfig) []error {
	var errs []error
	prefix := fmt.Sprintf("config: models[%d]", i)
	if m.Key == "" {
		errs = append(errs, fmt.Errorf("%s: key is required", prefix))
	}
	if m.ProviderID == "" {
		errs = append(errs, fmt.Errorf("%s (%s): provider_id is required", prefix, m.Key))
	}
	if m.Provider == "" {
		errs = append(errs, fmt.Errorf("%s (%s): provider is required", prefix, m.Key))
	}

	switch dispatch.BackendKind(m.Backend) {
	case dispatch.BackendHTTP:
		if m.HTTP == nil {
			errs = append(errs, fmt.Errorf("%s (%s): backend http requires an http: section", prefix, m.Key))
		} else {
			if m.HTTP.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s (%s): http.base_url is required", prefix, m.Key))
			}
			if m.HTTP.APIKeyEnv == "" {
				errs = append(errs, fmt.Errorf("%s (%s): http.api_key_env is required", prefix, m.Key))
			}
			switch dispatch.APIFormat(m.HTTP.Format) {
			case dispatch.APIFormatOpenAICompatible, dispatch.APIFormatAnthropic:
			default:
				errs = append(errs, fmt.Errorf("%s (%s): http.format %q is not a known wire format", prefix, m.Key, m.HTTP.Format))
			}
		}
	case dispatch.BackendCLI:
		if m.CLI == nil {
			errs = append(errs, fmt.Errorf("%s (%s): backend cli requires a cli: section", prefix, m.Key))
		} else if m.CLI.Executable == "" {
			errs = append(errs, fmt.Errorf("%s (%s): cli.executable is required", prefix, m.Key))
		}
		if m.Parser != "" && m.Parser != "raw" && m.Parser != "gemini" && m.Parser != "codex" {
			errs = append(errs, fmt.Errorf("%s (%s): unknown parser %q", prefix, m.Key, m.Parser))
		}
	case dispatch.BackendAsyncPoll:
		if m.Async == nil {
			errs = append(errs, fmt.Errorf("%s (%s): backend async_poll requires an async: section", prefix, m.Key))
		} else {
			switch dispatch.AsyncProvider(m.Async.Provider) {
			case dispatch.AsyncProviderOpenAIResponses, dispatch.AsyncProviderGeminiInteraction:
			default:
				errs = append(errs, fmt.Errorf("%s (%s): async.provider %q is not a known dialect", prefix, m.Key, m.Async.Provider))
			}
			if m.Async.APIKeyEnv == "" {
				errs = append(errs, fmt.Errorf("%s (%s): async.api_key_env is required", prefix, m.Key))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("%s (%s): unknown backend %q", prefix, m.Key, m.Backend))
	}

	return errs
}

func validateSecurity(sec *SecurityConfig) []error {
	if sec == nil || sec.RawPersistPolicy == "" {
		return nil
	}
	switch sec.RawPersistPolicy {
	case "always", "on_failure", "never":
		return nil
	default:
		return []error{fmt.Errorf("config: security.raw_persist_policy %q is not one of always|on_failure|never", sec.RawPersistPolicy)}
	}
}
