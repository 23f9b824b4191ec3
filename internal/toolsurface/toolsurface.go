// Package toolsurface implements the Go-interface contract each row of
// squall's tool table is exposed through. It contains no transport code —
// no JSON-RPC, no stdio framing, no schema advertisement — because the MCP
// shell that would speak those protocols to a client is an external
// collaborator, out of scope for this module. Callers (an MCP shell, a
// test, a CLI command) construct a Surface and call its methods directly.
package toolsurface

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/memoryactor"
	"github.com/dsado88/squall/internal/registry"
	"github.com/dsado88/squall/internal/review"
)

// Dispatcher is the subset of *registry.Registry the surface needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, key string, req dispatch.Request) (dispatch.Result, error)
	Lookup(key string) (dispatch.ModelEntry, error)
	Keys() []string
	ListModels() []registry.ModelSummary
}

// Reviewer is the subset of *review.Executor the surface needs.
type Reviewer interface {
	Run(ctx context.Context, req review.Request) review.Response
}

// Memorizer is the subset of *memoryactor.Actor the surface needs.
type Memorizer interface {
	Memorize(req memoryactor.MemorizeRequest) (string, error)
	Flush(branch string, prNumber int) memoryactor.FlushReport
	Recommendations() []memoryactor.Recommendation
	Memory(q memoryactor.MemoryQuery) string
}

// Surface wires the three collaborators into the seven tool operations.
type Surface struct {
	Registry Dispatcher
	Reviewer Reviewer
	Mem      Memorizer
}

func New(reg Dispatcher, rev Reviewer, mem Memorizer) *Surface {
	return &Surface{Registry: reg, Reviewer: rev, Mem: mem}
}

// ChatRequest is the input to Chat.
type ChatRequest struct {
	Prompt          string
	Model           string // optional; "" selects the registry's first configured key
	FilePaths       []string
	WorkingDir      string
	SystemPrompt    string
	Temperature     *float64
	MaxTokens       *int
	ReasoningEffort dispatch.ReasoningEffort
	Timeout         time.Duration
}

// ChatResult is the output of Chat.
type ChatResult struct {
	Model     string
	Provider  string
	Text      string
	Partial   bool
	LatencyMS int64
}

// Chat issues a single-model text request, per spec.md §6's `chat` tool.
// File-path context assembly is an out-of-scope collaborator concern
// (spec.md §1); callers that want file context must already have folded
// it into Prompt before calling Chat.
func (s *Surface) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	model := req.Model
	if model == "" {
		keys := s.Registry.Keys()
		if len(keys) == 0 {
			return ChatResult{}, errors.New("toolsurface: no models configured")
		}
		model = keys[0]
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)

	cancelCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result, err := s.Registry.Dispatch(cancelCtx, model, dispatch.Request{
		Prompt:          req.Prompt,
		Deadline:        deadline,
		WorkingDir:      req.WorkingDir,
		SystemPrompt:    req.SystemPrompt,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: req.ReasoningEffort,
		Cancel:          cancelCtx,
	})
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		Model:     model,
		Provider:  result.Provider,
		Text:      result.Text,
		Partial:   result.Partial,
		LatencyMS: result.LatencyMS,
	}, nil
}

// ClinkRequest is the input to Clink.
type ClinkRequest struct {
	Prompt     string
	Model      string // required; must be a cli-backend model
	FilePaths  []string
	WorkingDir string
	Timeout    time.Duration
}

// Clink issues a single CLI-model text request, per spec.md §6's `clink`
// tool — a chat call pinned to a subprocess-backed model, with no HTTP or
// async-poll fallback if the named model isn't a CLI backend.
func (s *Surface) Clink(ctx context.Context, req ClinkRequest) (ChatResult, error) {
	if req.Model == "" {
		return ChatResult{}, errors.New("toolsurface: clink requires a model")
	}
	entry, err := s.Registry.Lookup(req.Model)
	if err != nil {
		return ChatResult{}, err
	}
	if entry.Backend.Kind != dispatch.BackendCLI {
		return ChatResult{}, fmt.Errorf("toolsurface: model %q is not a cli backend", req.Model)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	deadline := time.Now().Add(timeout)

	cancelCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result, err := s.Registry.Dispatch(cancelCtx, req.Model, dispatch.Request{
		Prompt:     req.Prompt,
		Deadline:   deadline,
		WorkingDir: req.WorkingDir,
		Cancel:     cancelCtx,
	})
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		Model:     req.Model,
		Provider:  result.Provider,
		Text:      result.Text,
		Partial:   result.Partial,
		LatencyMS: result.LatencyMS,
	}, nil
}

// Review runs the parallel fan-out review, per spec.md §6's `review` tool.
func (s *Surface) Review(ctx context.Context, req review.Request) review.Response {
	return s.Reviewer.Run(ctx, req)
}

// ListModels returns the sorted {name, provider, backend_name} table, per
// spec.md §6's `listmodels` tool.
func (s *Surface) ListModels() []registry.ModelSummary {
	return s.Registry.ListModels()
}

// maxMemorizeContentChars is the spec's non-empty, <=500-char content
// bound for a memorize call.
const maxMemorizeContentChars = 500

// Memorize inserts or reinforces a pattern entry, per spec.md §6's
// `memorize` tool.
func (s *Surface) Memorize(req memoryactor.MemorizeRequest) (string, error) {
	if req.Content == "" {
		return "", errors.New("toolsurface: memorize requires non-empty content")
	}
	if len([]rune(req.Content)) > maxMemorizeContentChars {
		return "", fmt.Errorf("toolsurface: memorize content exceeds %d characters", maxMemorizeContentChars)
	}
	return s.Mem.Memorize(req)
}

// Memory reads back the curated patterns table, per spec.md §6's `memory`
// tool: optional category/model/scope filters, markdown truncated at a
// char boundary with `[truncated]` when it exceeds max_chars.
func (s *Surface) Memory(q memoryactor.MemoryQuery) string {
	return s.Mem.Memory(q)
}

// FlushRequest is the input to Flush.
type FlushRequest struct {
	Branch   string
	PRNumber int
}

// Flush graduates or archives branch-scoped patterns, per spec.md §6's
// `flush` tool.
func (s *Surface) Flush(req FlushRequest) (memoryactor.FlushReport, error) {
	if req.Branch == "" {
		return memoryactor.FlushReport{}, errors.New("toolsurface: flush requires a non-empty branch")
	}
	return s.Mem.Flush(req.Branch, req.PRNumber), nil
}
