package dispatch

import (
	"errors"
	"strings"
	"testing"
)

func TestError_UserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"model not found no suggestions", NewModelNotFound("gpt-9", nil), `model "gpt-9" not found`},
		{"model not found with suggestions", NewModelNotFound("gpt", []string{"gpt-4", "gpt-5"}), `model "gpt" not found; did you mean: gpt-4, gpt-5`},
		{"timeout", NewTimeout(1500), "timed out after 1500ms"},
		{"cancelled", NewCancelled(250), "cancelled after 250ms"},
		{"rate limited", NewRateLimited("openai"), "openai: rate limited"},
		{"upstream", NewUpstream("anthropic", "boom", 500), "anthropic: upstream error"},
		{"auth failed", NewAuthFailed("openai", "bad key"), "openai: authentication failed"},
		{"schema parse", NewSchemaParse("bad json"), "response could not be parsed"},
		{"process exit no stderr", NewProcessExit(1, ""), "process exited with code 1"},
		{"process exit with stderr", NewProcessExit(2, "boom"), "process exited with code 2: boom"},
		{"request", NewRequest(errors.New("dial tcp: refused")), "request failed"},
		{"file context", NewFileContext("too many files"), "file context error"},
		{"async job failed", NewAsyncJobFailed("gemini", "crashed"), "gemini: job failed"},
		{"poll failed", NewPollFailed("gemini", "job-1", "poll error"), "gemini: polling failed"},
		{"other", NewOther("mystery"), "unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.UserMessage(); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_ProcessExit_RedactsAndTruncatesStderr(t *testing.T) {
	long := strings.Repeat("x", 300)
	err := NewProcessExit(1, "key=sk-ant-REDACTED "+long)
	msg := err.UserMessage()
	if strings.Contains(msg, "sk-ant-REDACTED") {
		t.Errorf("UserMessage leaked a secret: %s", msg)
	}
	if !strings.Contains(msg, "…") {
		t.Errorf("expected truncation marker in %q", msg)
	}
}

func TestError_Provider(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"rate limited", NewRateLimited("openai"), "openai"},
		{"upstream", NewUpstream("anthropic", "", 0), "anthropic"},
		{"auth failed", NewAuthFailed("openai", ""), "openai"},
		{"async job failed", NewAsyncJobFailed("gemini", ""), "gemini"},
		{"poll failed", NewPollFailed("gemini", "", ""), "gemini"},
		{"timeout has no provider", NewTimeout(0), ""},
		{"model not found has no provider", NewModelNotFound("x", nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Provider(); got != tt.want {
				t.Errorf("Provider() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"rate limited", NewRateLimited("x"), true},
		{"timeout", NewTimeout(0), true},
		{"request", NewRequest(errors.New("x")), true},
		{"upstream 5xx", NewUpstream("x", "", 503), true},
		{"upstream 4xx", NewUpstream("x", "", 404), false},
		{"auth failed", NewAuthFailed("x", ""), false},
		{"schema parse", NewSchemaParse(""), false},
		{"model not found", NewModelNotFound("x", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_ReasonTag(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"timeout", NewTimeout(0), "timeout"},
		{"cancelled", NewCancelled(0), "cutoff"},
		{"rate limited", NewRateLimited("x"), "rate_limited"},
		{"auth failed", NewAuthFailed("x", ""), "auth_failed"},
		{"model not found", NewModelNotFound("x", nil), "model_not_found"},
		{"schema parse", NewSchemaParse(""), "parse_error"},
		{"process exit", NewProcessExit(1, ""), "process_exit"},
		{"other", NewOther(""), "error"},
		{"upstream falls to default", NewUpstream("x", "", 0), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.ReasonTag(); got != tt.want {
				t.Errorf("ReasonTag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuggest_SubstringMatchSortedCapped(t *testing.T) {
	known := []string{"gpt-5-mini", "gpt-5", "claude-opus", "gpt-5-nano", "gpt-4", "gpt-4o"}
	got := NewModelNotFound("gpt-5", known).Suggestions
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Errorf("suggestions not sorted: %v", got)
		}
	}
	for _, s := range got {
		if !strings.Contains(s, "gpt-5") {
			t.Errorf("suggestion %q does not match substring gpt-5", s)
		}
	}
}

func TestSuggest_CapsAtFive(t *testing.T) {
	known := []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"}
	got := NewModelNotFound("m", known).Suggestions
	if len(got) != 5 {
		t.Errorf("len(Suggestions) = %d, want 5", len(got))
	}
}

func TestAsDispatchError(t *testing.T) {
	if AsDispatchError(nil) != nil {
		t.Error("AsDispatchError(nil) should be nil")
	}

	de := NewTimeout(10)
	if got := AsDispatchError(de); got != de {
		t.Errorf("AsDispatchError should return the same *Error unchanged")
	}

	plain := errors.New("boom")
	wrapped := AsDispatchError(plain)
	if wrapped.Kind != KindOther {
		t.Errorf("Kind = %v, want KindOther", wrapped.Kind)
	}
	if wrapped.Message != "boom" {
		t.Errorf("Message = %q, want %q", wrapped.Message, "boom")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial failed")
	de := NewRequest(cause)
	if !errors.Is(de, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestWrapConnection_AlwaysRequest(t *testing.T) {
	de := WrapConnection(errors.New("connection refused"))
	if de.Kind != KindRequest {
		t.Errorf("Kind = %v, want KindRequest", de.Kind)
	}
}
