// Package dispatch defines the shared request/result/configuration types
// that the HTTP, CLI, and async-poll dispatch adapters all exchange with
// the registry and the review executor.
package dispatch

import (
	"context"
	"time"
)

// ReasoningEffort is a coarse hint forwarded to providers that support it.
type ReasoningEffort string

const (
	ReasoningUnset  ReasoningEffort = ""
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
	ReasoningXHigh  ReasoningEffort = "xhigh"
)

// Elevated reports whether the effort level is medium or above, the
// threshold at which HTTP dispatch extends its first-byte and stall
// timeouts (models may think silently for a long time).
func (r ReasoningEffort) Elevated() bool {
	switch r {
	case ReasoningMedium, ReasoningHigh, ReasoningXHigh:
		return true
	default:
		return false
	}
}

// APIFormat identifies the wire shape an HTTP backend speaks.
type APIFormat string

const (
	APIFormatOpenAICompatible APIFormat = "openai"
	APIFormatAnthropic        APIFormat = "anthropic"
)

// AsyncProvider identifies an async-poll protocol dialect.
type AsyncProvider string

const (
	AsyncProviderOpenAIResponses   AsyncProvider = "openai_responses"
	AsyncProviderGeminiInteraction AsyncProvider = "gemini_interactions"
)

// BackendKind tags which of the three dispatch shapes a model entry uses.
type BackendKind string

const (
	BackendHTTP      BackendKind = "http"
	BackendCLI       BackendKind = "cli"
	BackendAsyncPoll BackendKind = "async_poll"
)

// HTTPBackend describes a streaming chat/completions endpoint.
type HTTPBackend struct {
	BaseURL   string
	APIKey    string // never rendered by String()/LogValue()
	APIKeyEnv string
	Format    APIFormat
}

// CLIBackend describes a local subprocess agent.
type CLIBackend struct {
	Executable string
	Args       []string // argv template; "{model}" is substituted, the prompt never is
}

// AsyncPollBackend describes a launch-then-poll research API.
type AsyncPollBackend struct {
	Provider  AsyncProvider
	APIKey    string
	APIKeyEnv string
	BaseURL   string
}

// BackendVariant is the tagged sum described in the data model: exactly
// one of HTTP, CLI, or Async is populated, selected by Kind.
type BackendVariant struct {
	Kind  BackendKind
	HTTP  *HTTPBackend
	CLI   *CLIBackend
	Async *AsyncPollBackend
}

// ModelEntry is one immutable, process-wide configured model.
type ModelEntry struct {
	Key           string // stable local name, the registry lookup key
	ProviderID    string // provider model-id on the wire
	Provider      string // provider name, used for parser/format selection and error attribution
	Backend       BackendVariant
	Parser        string // named output parser for CLI backends; "" defaults to "raw"
	SpeedTier     string
	PrecisionTier string
	Strengths     string
	Weaknesses    string
	Disabled      bool
}

// Redacted returns a copy of the entry safe for debug/diagnostic rendering:
// API keys are replaced with a fixed placeholder, never included verbatim.
func (m ModelEntry) Redacted() ModelEntry {
	out := m
	switch m.Backend.Kind {
	case BackendHTTP:
		if m.Backend.HTTP != nil {
			h := *m.Backend.HTTP
			if h.APIKey != "" {
				h.APIKey = "[redacted]"
			}
			out.Backend.HTTP = &h
		}
	case BackendAsyncPoll:
		if m.Backend.Async != nil {
			a := *m.Backend.Async
			if a.APIKey != "" {
				a.APIKey = "[redacted]"
			}
			out.Backend.Async = &a
		}
	}
	return out
}

// Request is the immutable input to a single dispatch call.
type Request struct {
	Prompt          string
	ProviderModelID string
	Deadline        time.Time // absolute, monotonic
	WorkingDir      string
	SystemPrompt    string
	Temperature     *float64
	MaxTokens       *int
	ReasoningEffort ReasoningEffort
	Cancel          context.Context // observed for cooperative cancellation; nil means uncancellable
	StallTimeout    time.Duration   // zero means "use the adapter default"
}

// Result is the immutable output of a single successful (possibly partial)
// dispatch call.
type Result struct {
	Text      string
	Model     string
	Provider  string
	LatencyMS int64
	Partial   bool
}

// Dispatcher is implemented by each of the three backend adapters.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Result, error)
}
