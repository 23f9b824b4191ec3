package dispatch

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/dsado88/squall/internal/security"
)

// redactor scrubs known API-key shapes from upstream-sourced message
// fields before UserMessage renders them. Config-level keys are already
// kept out of error strings by construction; this is defense-in-depth
// against a provider echoing a key back in an error body.
var redactor = security.NewRedactor()

// Kind is the closed set of dispatch error shapes.
type Kind int

const (
	KindModelNotFound Kind = iota
	KindTimeout
	KindCancelled
	KindRateLimited
	KindUpstream
	KindAuthFailed
	KindSchemaParse
	KindProcessExit
	KindRequest
	KindFileContext
	KindAsyncJobFailed
	KindPollFailed
	KindOther
)

// Error is the single error type dispatch adapters, the registry, and the
// review executor exchange. Exactly one Kind applies; the fields relevant
// to that kind are populated, the rest left zero.
type Error struct {
	Kind Kind

	Model       string   // ModelNotFound
	Suggestions []string // ModelNotFound, sorted, capped at 5

	ElapsedMS int64 // Timeout, Cancelled

	ProviderName string // RateLimited, Upstream, AuthFailed, AsyncJobFailed, PollFailed
	Message      string // Upstream, AuthFailed, SchemaParse, AsyncJobFailed, PollFailed, FileContext, Other
	Status       int    // Upstream; 0 means absent

	ExitCode   int    // ProcessExit
	StderrTail string // ProcessExit

	TransportErr error // Request

	JobID string // PollFailed

	wrapped error // underlying cause, for errors.Is/As and internal logging only
}

func (e *Error) Error() string {
	return e.UserMessage()
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Provider returns the attributable provider name for kinds that carry
// one, and "" for kinds that don't (ModelNotFound, Timeout, Cancelled,
// SchemaParse, ProcessExit, Request, FileContext, Other).
func (e *Error) Provider() string {
	switch e.Kind {
	case KindRateLimited, KindUpstream, KindAuthFailed, KindAsyncJobFailed, KindPollFailed:
		return e.ProviderName
	default:
		return ""
	}
}

// IsRetryable reports whether a consumer (e.g. the memory recommender)
// should treat this failure as transient. The dispatch fabric itself never
// retries; this exists purely for downstream classification.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindRequest:
		return true
	case KindUpstream:
		return e.Status >= 500
	default:
		return false
	}
}

// maxStderrTail is the number of trailing stderr bytes retained in a
// user-facing ProcessExit message.
const maxStderrTail = 200

// UserMessage renders a client-safe string: no URLs, no stack traces, no
// raw transport errors.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindModelNotFound:
		if len(e.Suggestions) > 0 {
			return fmt.Sprintf("model %q not found; did you mean: %s", e.Model, strings.Join(e.Suggestions, ", "))
		}
		return fmt.Sprintf("model %q not found", e.Model)
	case KindTimeout:
		return fmt.Sprintf("timed out after %dms", e.ElapsedMS)
	case KindCancelled:
		return fmt.Sprintf("cancelled after %dms", e.ElapsedMS)
	case KindRateLimited:
		return fmt.Sprintf("%s: rate limited", e.ProviderName)
	case KindUpstream:
		return fmt.Sprintf("%s: upstream error", e.ProviderName)
	case KindAuthFailed:
		return fmt.Sprintf("%s: authentication failed", e.ProviderName)
	case KindSchemaParse:
		return "response could not be parsed"
	case KindProcessExit:
		tail := redactor.Redact(e.StderrTail)
		truncated := false
		if len(tail) > maxStderrTail {
			tail = tail[len(tail)-maxStderrTail:]
			truncated = true
		}
		tail = strings.TrimSpace(tail)
		if truncated {
			return fmt.Sprintf("process exited with code %d: …%s", e.ExitCode, tail)
		}
		if tail == "" {
			return fmt.Sprintf("process exited with code %d", e.ExitCode)
		}
		return fmt.Sprintf("process exited with code %d: %s", e.ExitCode, tail)
	case KindRequest:
		return "request failed"
	case KindFileContext:
		return "file context error"
	case KindAsyncJobFailed:
		return fmt.Sprintf("%s: job failed", e.ProviderName)
	case KindPollFailed:
		return fmt.Sprintf("%s: polling failed", e.ProviderName)
	default:
		return "unknown error"
	}
}

// ReasonTag projects the error kind onto the closed reason-tag vocabulary
// used in memory event logging.
func (e *Error) ReasonTag() string {
	switch e.Kind {
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cutoff"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailed:
		return "auth_failed"
	case KindModelNotFound:
		return "model_not_found"
	case KindSchemaParse:
		return "parse_error"
	case KindProcessExit:
		return "process_exit"
	default:
		return "error"
	}
}

func NewModelNotFound(model string, known []string) *Error {
	return &Error{Kind: KindModelNotFound, Model: model, Suggestions: suggest(model, known)}
}

func NewTimeout(elapsedMS int64) *Error {
	return &Error{Kind: KindTimeout, ElapsedMS: elapsedMS}
}

func NewCancelled(elapsedMS int64) *Error {
	return &Error{Kind: KindCancelled, ElapsedMS: elapsedMS}
}

func NewRateLimited(provider string) *Error {
	return &Error{Kind: KindRateLimited, ProviderName: provider}
}

func NewUpstream(provider, message string, status int) *Error {
	return &Error{Kind: KindUpstream, ProviderName: provider, Message: message, Status: status}
}

func NewAuthFailed(provider, message string) *Error {
	return &Error{Kind: KindAuthFailed, ProviderName: provider, Message: message}
}

func NewSchemaParse(message string) *Error {
	return &Error{Kind: KindSchemaParse, Message: message}
}

func NewProcessExit(code int, stderrTail string) *Error {
	return &Error{Kind: KindProcessExit, ExitCode: code, StderrTail: stderrTail}
}

func NewRequest(err error) *Error {
	return &Error{Kind: KindRequest, TransportErr: err, wrapped: err}
}

func NewFileContext(message string) *Error {
	return &Error{Kind: KindFileContext, Message: message}
}

func NewAsyncJobFailed(provider, message string) *Error {
	return &Error{Kind: KindAsyncJobFailed, ProviderName: provider, Message: message}
}

func NewPollFailed(provider, jobID, message string) *Error {
	return &Error{Kind: KindPollFailed, ProviderName: provider, JobID: jobID, Message: message}
}

func NewOther(message string) *Error {
	return &Error{Kind: KindOther, Message: message}
}

// WrapConnection classifies a transport-level error the way the HTTP and
// CLI adapters need to: context errors pass through as-is (the caller has
// already decided Timeout vs Cancelled), net.Error becomes a retryable
// Request error, everything else becomes a non-retryable Request error.
func WrapConnection(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewRequest(err)
	}
	return NewRequest(err)
}

// suggest returns substring-matched keys from known, sorted, capped at 5.
func suggest(model string, known []string) []string {
	var matches []string
	lower := strings.ToLower(model)
	for _, k := range known {
		if strings.Contains(strings.ToLower(k), lower) || strings.Contains(lower, strings.ToLower(k)) {
			matches = append(matches, k)
		}
	}
	sort.Strings(matches)
	if len(matches) > 5 {
		matches = matches[:5]
	}
	return matches
}

// AsDispatchError extracts a *Error from err, wrapping plain errors as
// Other so every dispatch call site can treat the return uniformly.
func AsDispatchError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewOther(err.Error())
}
