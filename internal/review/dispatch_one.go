package review

import (
	"context"
	"time"

	"github.com/dsado88/squall/internal/dispatch"
)

// dispatchOne builds a per-model provider request and runs it through the
// registry, converting the outcome into a ResultEntry.
func (ex *Executor) dispatchOne(ctx context.Context, req Request, model string, internalDeadline time.Time, reasoning dispatch.ReasoningEffort, maxTokens *int) ResultEntry {
	now := time.Now()
	perModelDeadline := internalDeadline
	if secs, ok := req.PerModelTimeoutSecs[model]; ok && secs > 0 {
		candidate := now.Add(time.Duration(secs * float64(time.Second)))
		if candidate.Before(perModelDeadline) {
			perModelDeadline = candidate
		}
	}

	systemPrompt := req.SharedSystemPrompt
	if override, ok := req.PerModelSystemPrompts[model]; ok {
		systemPrompt = override
	}

	var stall time.Duration
	if req.Deep {
		stall = 300 * time.Second
	}

	dispatchReq := dispatch.Request{
		Prompt:          req.Prompt,
		Deadline:        perModelDeadline,
		WorkingDir:      req.WorkingDir,
		SystemPrompt:    systemPrompt,
		Temperature:     req.Temperature,
		MaxTokens:       maxTokens,
		ReasoningEffort: reasoning,
		Cancel:          ctx,
		StallTimeout:    stall,
	}

	entry, err := ex.Registry.Lookup(model)
	if err != nil {
		de := dispatch.AsDispatchError(err)
		msg := de.UserMessage()
		return ResultEntry{Model: model, Status: StatusError, Reason: de.ReasonTag(), Error: &msg}
	}

	start := time.Now()
	result, dispatchErr := ex.Registry.Dispatch(ctx, model, dispatchReq)
	elapsed := time.Since(start).Milliseconds()

	if dispatchErr != nil {
		de := dispatch.AsDispatchError(dispatchErr)
		msg := de.UserMessage()
		return ResultEntry{
			Model: model, Provider: entry.Provider, Status: StatusError,
			Reason: de.ReasonTag(), Error: &msg, LatencyMS: elapsed,
		}
	}

	reason := ""
	if result.Partial {
		reason = "partial"
	}
	text := result.Text
	return ResultEntry{
		Model: model, Provider: entry.Provider, Status: StatusSuccess,
		Text: &text, Reason: reason, LatencyMS: result.LatencyMS, Partial: result.Partial,
	}
}
