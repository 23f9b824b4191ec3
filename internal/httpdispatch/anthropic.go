package httpdispatch

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/dsado88/squall/internal/dispatch"
)

// dispatchAnthropic streams an Anthropic Messages call. It mirrors the
// OpenAI-compatible path's deadline layering but decodes events through
// the vendor SDK's streaming accumulator instead of a hand-rolled SSE
// scanner, since Anthropic's event shapes (content_block_delta,
// message_delta, message_stop) are richer than a single "delta.content"
// field.
func (d *Dispatcher) dispatchAnthropic(ctx context.Context, req dispatch.Request) (dispatch.Result, error) {
	start := time.Now()
	deadlineCtx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()
	if req.Cancel != nil {
		var cancelLinked context.CancelFunc
		deadlineCtx, cancelLinked = linkCancel(deadlineCtx, req.Cancel)
		defer cancelLinked()
	}

	opts := []option.RequestOption{option.WithAPIKey(d.Backend.APIKey)}
	if d.Backend.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(d.Backend.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(4096)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ProviderModelID),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	stream := client.Messages.NewStreaming(deadlineCtx, params)

	stallTimeout := req.StallTimeout
	if stallTimeout == 0 {
		stallTimeout = defaultStall
		if req.ReasoningEffort.Elevated() {
			stallTimeout = elevatedStall
		}
	}

	result := anthropicStreamLoop(deadlineCtx, stream, stallTimeout)
	latency := time.Since(start).Milliseconds()
	result.latencyMS = latency

	if result.upstreamMsg != "" {
		return dispatch.Result{}, dispatch.NewUpstream("anthropic", result.upstreamMsg, 0)
	}
	if result.noBytes {
		if req.Cancel != nil && req.Cancel.Err() != nil && time.Now().Before(req.Deadline) {
			return dispatch.Result{}, dispatch.NewCancelled(latency)
		}
		return dispatch.Result{}, dispatch.NewTimeout(latency)
	}
	if result.text == "" {
		return dispatch.Result{}, dispatch.NewUpstream("anthropic", "empty", 0)
	}

	return dispatch.Result{
		Text:      result.text,
		Model:     req.ProviderModelID,
		Provider:  "anthropic",
		LatencyMS: latency,
		Partial:   result.partial,
	}, nil
}

type anthropicStreamResult struct {
	text        string
	partial     bool
	noBytes     bool
	upstreamMsg string
	latencyMS   int64
}

// anthropicStreamLoop consumes the SDK's streaming iterator, accumulating
// text deltas. The first event is awaited synchronously so a connection
// failure surfaces as an error rather than an empty-but-successful result,
// mirroring the teacher's synchronous-first-event discipline.
func anthropicStreamLoop(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], stall time.Duration) anthropicStreamResult {
	var acc string
	gotAny := false

	type step struct {
		more bool
	}
	nextCh := make(chan step, 1)
	pullNext := func() {
		nextCh <- step{more: stream.Next()}
	}
	go pullNext()

	for {
		timer := time.NewTimer(stall)
		select {
		case <-ctx.Done():
			timer.Stop()
			return anthropicStreamResult{text: acc, partial: acc != "", noBytes: acc == ""}

		case <-timer.C:
			if acc != "" {
				return anthropicStreamResult{text: acc, partial: true}
			}
			return anthropicStreamResult{noBytes: true}

		case s := <-nextCh:
			timer.Stop()
			if !s.more {
				if err := stream.Err(); err != nil {
					if acc != "" {
						return anthropicStreamResult{text: acc, partial: true}
					}
					if ctx.Err() != nil {
						return anthropicStreamResult{noBytes: true}
					}
					return anthropicStreamResult{upstreamMsg: err.Error()}
				}
				if !gotAny {
					return anthropicStreamResult{noBytes: true}
				}
				return anthropicStreamResult{text: acc}
			}

			gotAny = true
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
					acc += delta.Text
				}
			case anthropic.ErrorObject:
				return anthropicStreamResult{upstreamMsg: variant.Message}
			}
			go pullNext()
		}
	}
}
