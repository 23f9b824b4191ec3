// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for squall's model registry.
package config

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Models lists every configured model entry.
	Models []ModelConfig `yaml:"models"`

	// Limits overrides the per-backend-class admission semaphore sizes.
	Limits *LimitsConfig `yaml:"limits,omitempty"`

	// Security holds optional security settings (raw-transcript persistence
	// policy).
	Security *SecurityConfig `yaml:"security,omitempty"`
}

// ModelConfig is one model entry as declared in YAML, before resolution
// into a dispatch.ModelEntry (API keys pulled from env, backend variant
// validated against Backend).
type ModelConfig struct {
	Key           string `yaml:"key"`
	ProviderID    string `yaml:"provider_id"`
	Provider      string `yaml:"provider"`
	Backend       string `yaml:"backend"` // "http" | "cli" | "async_poll"
	Parser        string `yaml:"parser,omitempty"`
	SpeedTier     string `yaml:"speed_tier,omitempty"`
	PrecisionTier string `yaml:"precision_tier,omitempty"`
	Strengths     string `yaml:"strengths,omitempty"`
	Weaknesses    string `yaml:"weaknesses,omitempty"`
	Disabled      bool   `yaml:"disabled,omitempty"`

	HTTP  *HTTPBackendConfig  `yaml:"http,omitempty"`
	CLI   *CLIBackendConfig   `yaml:"cli,omitempty"`
	Async *AsyncBackendConfig `yaml:"async,omitempty"`
}

// HTTPBackendConfig configures a streaming chat/completions backend.
type HTTPBackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Format    string `yaml:"format"` // "openai" | "anthropic"
}

// CLIBackendConfig configures a local subprocess agent backend.
type CLIBackendConfig struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
}

// AsyncBackendConfig configures a launch-then-poll research API backend.
type AsyncBackendConfig struct {
	Provider  string `yaml:"provider"` // "openai_responses" | "gemini_interactions"
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// LimitsConfig overrides the registry's per-backend-class admission
// semaphore sizes. Zero/absent fields fall back to registry defaults.
type LimitsConfig struct {
	HTTP      int64 `yaml:"http,omitempty"`
	CLI       int64 `yaml:"cli,omitempty"`
	AsyncPoll int64 `yaml:"async_poll,omitempty"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RawPersistPolicy controls when raw CLI transcripts are written to
	// disk: "always", "on_failure", or "never".
	RawPersistPolicy string `yaml:"raw_persist_policy,omitempty"`
}
