// Package httpdispatch implements the streaming HTTP/SSE dispatch adapter
// for both OpenAI-compatible chat completions and Anthropic Messages.
package httpdispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/obs"
)

const (
	// maxResponseBody caps how much of a non-streaming error body we will
	// ever read, under the same deadline as everything else.
	maxResponseBody = 2 << 20 // 2 MiB

	defaultConnectTimeout = 60 * time.Second
	defaultFirstByte      = 60 * time.Second
	defaultStall          = 60 * time.Second
	elevatedFirstByte     = 300 * time.Second
	elevatedStall         = 300 * time.Second
)

// Dispatcher issues one streaming chat/completions call per Dispatch call.
// It never retries and never blocks past the request's absolute deadline.
type Dispatcher struct {
	Backend dispatch.HTTPBackend
	// Client is the http.Client used for the request. It must not set a
	// blanket Timeout: cancellation is driven entirely by context, the
	// same way the streaming client in an OpenAI-style SDK is configured
	// separately from the non-streaming client.
	Client *http.Client

	// Metrics and Logger are optional observability collaborators; either
	// may be nil (e.g. in unit tests), in which case that call site is
	// simply skipped.
	Metrics *obs.Metrics
	Logger  *slog.Logger
}

func New(backend dispatch.HTTPBackend, metrics *obs.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Backend: backend,
		Client:  &http.Client{},
		Metrics: metrics,
		Logger:  logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	provider := backendProviderName(d.Backend)

	ctx, span := otel.Tracer(obs.Tracer).Start(ctx, "squall.dispatch.http", trace.WithAttributes(
		attribute.String("model", req.ProviderModelID),
		attribute.String("provider", provider),
		attribute.String("api_format", string(d.Backend.Format)),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	if d.Logger != nil {
		d.Logger.Debug("http dispatch started", "correlation_id", correlationID, "model", req.ProviderModelID, "provider", provider)
	}

	var result dispatch.Result
	var err error
	switch d.Backend.Format {
	case dispatch.APIFormatAnthropic:
		result, err = d.dispatchAnthropic(ctx, req)
	default:
		result, err = d.dispatchOpenAICompatible(ctx, req)
	}

	outcome := dispatchOutcome(result, err)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	if d.Metrics != nil {
		d.Metrics.HTTPDispatchDuration.WithLabelValues(provider, outcome).Observe(time.Since(start).Seconds())
	}
	if d.Logger != nil {
		d.Logger.Debug("http dispatch finished", "correlation_id", correlationID, "outcome", outcome, "latency_ms", time.Since(start).Milliseconds())
	}
	return result, err
}

// dispatchOutcome projects a dispatch result onto the closed
// success/partial/timeout/error label vocabulary the HTTP dispatch
// histogram is bucketed by.
func dispatchOutcome(result dispatch.Result, err error) string {
	if err != nil {
		if de := dispatch.AsDispatchError(err); de != nil && de.Kind == dispatch.KindTimeout {
			return "timeout"
		}
		return "error"
	}
	if result.Partial {
		return "partial"
	}
	return "success"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	Stream          bool          `json:"stream"`
	Temperature     *float64      `json:"temperature,omitempty"`
	MaxTokens       *int          `json:"max_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
}

func buildChatRequest(req dispatch.Request) chatRequest {
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	return chatRequest{
		Model:           req.ProviderModelID,
		Messages:        messages,
		Stream:          true,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ReasoningEffort: string(req.ReasoningEffort),
	}
}

func (d *Dispatcher) dispatchOpenAICompatible(ctx context.Context, req dispatch.Request) (dispatch.Result, error) {
	start := time.Now()
	deadlineCtx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()
	if req.Cancel != nil {
		var cancelLinked context.CancelFunc
		deadlineCtx, cancelLinked = linkCancel(deadlineCtx, req.Cancel)
		defer cancelLinked()
	}

	body, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("encoding request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(deadlineCtx, http.MethodPost, d.Backend.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("building request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.Backend.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.Backend.APIKey)
	}

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return classifyConnectionError(deadlineCtx, err, start, "")
	}
	defer resp.Body.Close()

	if cl := resp.ContentLength; cl > 0 && cl > maxResponseBody {
		return dispatch.Result{}, dispatch.NewUpstream(backendProviderName(d.Backend), "response too large", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return dispatch.Result{}, dispatch.NewRateLimited(backendProviderName(d.Backend))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return dispatch.Result{}, dispatch.NewAuthFailed(backendProviderName(d.Backend), readBoundedErrorBody(resp.Body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dispatch.Result{}, dispatch.NewUpstream(backendProviderName(d.Backend), readBoundedErrorBody(resp.Body), resp.StatusCode)
	}

	stallTimeout := req.StallTimeout
	if stallTimeout == 0 {
		stallTimeout = defaultStall
		if req.ReasoningEffort.Elevated() {
			stallTimeout = elevatedStall
		}
	}
	firstByte := defaultFirstByte
	if req.ReasoningEffort.Elevated() {
		firstByte = elevatedFirstByte
	}

	acc, partial, term := readOpenAISSE(deadlineCtx, resp.Body, firstByte, stallTimeout)
	latency := time.Since(start).Milliseconds()

	if term == terminateEmpty {
		return dispatch.Result{}, dispatch.NewUpstream(backendProviderName(d.Backend), "empty", 0)
	}
	if term == terminateNoBytes {
		if deadlineCtx.Err() != nil && ctxWasCancelledNotDeadline(deadlineCtx, req) {
			return dispatch.Result{}, dispatch.NewCancelled(latency)
		}
		return dispatch.Result{}, dispatch.NewTimeout(latency)
	}
	if term == terminateUpstream {
		return dispatch.Result{}, dispatch.NewUpstream(backendProviderName(d.Backend), acc, 0)
	}

	return dispatch.Result{
		Text:      acc,
		Model:     req.ProviderModelID,
		Provider:  backendProviderName(d.Backend),
		LatencyMS: latency,
		Partial:   partial,
	}, nil
}

func backendProviderName(b dispatch.HTTPBackend) string {
	if b.Format == dispatch.APIFormatAnthropic {
		return "anthropic"
	}
	return "openai-compatible"
}

func readBoundedErrorBody(r io.Reader) string {
	limited := io.LimitReader(r, maxResponseBody)
	b, _ := io.ReadAll(limited)
	return string(bytes.TrimSpace(b))
}

func classifyConnectionError(ctx context.Context, err error, start time.Time, partialText string) (dispatch.Result, error) {
	elapsed := time.Since(start).Milliseconds()
	if ctx.Err() != nil {
		if partialText != "" {
			return dispatch.Result{Text: partialText, Partial: true, LatencyMS: elapsed}, nil
		}
		return dispatch.Result{}, dispatch.NewTimeout(elapsed)
	}
	if partialText != "" {
		return dispatch.Result{Text: partialText, Partial: true, LatencyMS: elapsed}, nil
	}
	return dispatch.Result{}, dispatch.WrapConnection(err)
}

// linkCancel merges an externally observed cancellation signal (the review
// executor's shared cutoff token) with the per-call deadline context.
func linkCancel(parent context.Context, cancelSignal context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-cancelSignal.Done():
			cancel()
		case <-stop:
		}
	}()
	return merged, func() {
		close(stop)
		cancel()
	}
}

func ctxWasCancelledNotDeadline(ctx context.Context, req dispatch.Request) bool {
	if req.Cancel == nil {
		return false
	}
	return req.Cancel.Err() != nil && time.Now().Before(req.Deadline)
}
