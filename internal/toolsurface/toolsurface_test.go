package toolsurface

import (
	"context"
	"testing"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/memoryactor"
	"github.com/dsado88/squall/internal/registry"
	"github.com/dsado88/squall/internal/review"
)

type fakeRegistry struct {
	entries map[string]dispatch.ModelEntry
	result  dispatch.Result
	err     error
}

func (f *fakeRegistry) Dispatch(ctx context.Context, key string, req dispatch.Request) (dispatch.Result, error) {
	return f.result, f.err
}

func (f *fakeRegistry) Lookup(key string) (dispatch.ModelEntry, error) {
	e, ok := f.entries[key]
	if !ok {
		return dispatch.ModelEntry{}, dispatch.NewModelNotFound(key, f.Keys())
	}
	return e, nil
}

func (f *fakeRegistry) Keys() []string {
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return keys
}

func (f *fakeRegistry) ListModels() []registry.ModelSummary {
	return []registry.ModelSummary{{Name: "gpt-fast", Provider: "openai", BackendName: "http"}}
}

type fakeReviewer struct {
	resp review.Response
}

func (f *fakeReviewer) Run(ctx context.Context, req review.Request) review.Response {
	return f.resp
}

type fakeMemorizer struct {
	memorizePath string
	memorizeErr  error
	flushReport  memoryactor.FlushReport
	memoryOut    string
}

func (f *fakeMemorizer) Memorize(req memoryactor.MemorizeRequest) (string, error) {
	return f.memorizePath, f.memorizeErr
}

func (f *fakeMemorizer) Flush(branch string, prNumber int) memoryactor.FlushReport {
	return f.flushReport
}

func (f *fakeMemorizer) Recommendations() []memoryactor.Recommendation { return nil }

func (f *fakeMemorizer) Memory(q memoryactor.MemoryQuery) string { return f.memoryOut }

func TestChat_DefaultsToFirstModel(t *testing.T) {
	reg := &fakeRegistry{
		entries: map[string]dispatch.ModelEntry{"gpt-fast": {Key: "gpt-fast"}},
		result:  dispatch.Result{Text: "hi", Provider: "openai"},
	}
	s := New(reg, &fakeReviewer{}, &fakeMemorizer{})
	res, err := s.Chat(context.Background(), ChatRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "gpt-fast" || res.Text != "hi" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestChat_NoModelsConfigured(t *testing.T) {
	s := New(&fakeRegistry{entries: map[string]dispatch.ModelEntry{}}, &fakeReviewer{}, &fakeMemorizer{})
	if _, err := s.Chat(context.Background(), ChatRequest{Prompt: "hello"}); err == nil {
		t.Fatal("expected error when no models configured")
	}
}

func TestClink_RequiresModel(t *testing.T) {
	s := New(&fakeRegistry{entries: map[string]dispatch.ModelEntry{}}, &fakeReviewer{}, &fakeMemorizer{})
	if _, err := s.Clink(context.Background(), ClinkRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestClink_RejectsNonCLIBackend(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]dispatch.ModelEntry{
		"gpt-fast": {Key: "gpt-fast", Backend: dispatch.BackendVariant{Kind: dispatch.BackendHTTP}},
	}}
	s := New(reg, &fakeReviewer{}, &fakeMemorizer{})
	if _, err := s.Clink(context.Background(), ClinkRequest{Prompt: "hi", Model: "gpt-fast"}); err == nil {
		t.Fatal("expected error for non-cli model")
	}
}

func TestClink_DispatchesCLIBackend(t *testing.T) {
	reg := &fakeRegistry{
		entries: map[string]dispatch.ModelEntry{
			"claude-cli": {Key: "claude-cli", Backend: dispatch.BackendVariant{Kind: dispatch.BackendCLI}},
		},
		result: dispatch.Result{Text: "done", Provider: "anthropic"},
	}
	s := New(reg, &fakeReviewer{}, &fakeMemorizer{})
	res, err := s.Clink(context.Background(), ClinkRequest{Prompt: "hi", Model: "claude-cli"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "done" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestListModels(t *testing.T) {
	s := New(&fakeRegistry{entries: map[string]dispatch.ModelEntry{}}, &fakeReviewer{}, &fakeMemorizer{})
	models := s.ListModels()
	if len(models) != 1 || models[0].Name != "gpt-fast" {
		t.Errorf("unexpected models: %+v", models)
	}
}

func TestMemorize_RejectsEmptyContent(t *testing.T) {
	s := New(&fakeRegistry{}, &fakeReviewer{}, &fakeMemorizer{})
	if _, err := s.Memorize(memoryactor.MemorizeRequest{Content: ""}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestMemorize_RejectsOversizedContent(t *testing.T) {
	s := New(&fakeRegistry{}, &fakeReviewer{}, &fakeMemorizer{})
	big := make([]rune, 501)
	if _, err := s.Memorize(memoryactor.MemorizeRequest{Content: string(big)}); err == nil {
		t.Fatal("expected error for oversized content")
	}
}

func TestMemorize_DelegatesToMemory(t *testing.T) {
	mem := &fakeMemorizer{memorizePath: "patterns.md"}
	s := New(&fakeRegistry{}, &fakeReviewer{}, mem)
	path, err := s.Memorize(memoryactor.MemorizeRequest{Content: "use retries"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "patterns.md" {
		t.Errorf("path = %q, want patterns.md", path)
	}
}

func TestFlush_RequiresBranch(t *testing.T) {
	s := New(&fakeRegistry{}, &fakeReviewer{}, &fakeMemorizer{})
	if _, err := s.Flush(FlushRequest{}); err == nil {
		t.Fatal("expected error for empty branch")
	}
}

func TestFlush_Delegates(t *testing.T) {
	mem := &fakeMemorizer{flushReport: memoryactor.FlushReport{Pruned: 3}}
	s := New(&fakeRegistry{}, &fakeReviewer{}, mem)
	report, err := s.Flush(FlushRequest{Branch: "feature/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Pruned != 3 {
		t.Errorf("report = %+v", report)
	}
}

func TestMemory_Delegates(t *testing.T) {
	mem := &fakeMemorizer{memoryOut: "# Patterns"}
	s := New(&fakeRegistry{}, &fakeReviewer{}, mem)
	if got := s.Memory(memoryactor.MemoryQuery{}); got != "# Patterns" {
		t.Errorf("got %q", got)
	}
}

func TestReview_Delegates(t *testing.T) {
	rev := &fakeReviewer{resp: review.Response{ElapsedMS: 42}}
	s := New(&fakeRegistry{}, rev, &fakeMemorizer{})
	if got := s.Review(context.Background(), review.Request{}); got.ElapsedMS != 42 {
		t.Errorf("got %+v", got)
	}
}
