// Package asyncpoll implements the launch-then-poll dispatch state machine
// shared by the OpenAI Responses and Gemini Interactions dialects.
package asyncpoll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/obs"
)

const maxPollBody = 4 << 20 // 4 MiB
const maxFailures = 5

// dialect parameterizes the two protocol shapes over one shared loop.
type dialect interface {
	launchRequest(req dispatch.Request, backend dispatch.AsyncPollBackend) (*http.Request, error)
	extractJobID(body []byte) (string, error)
	pollRequest(ctx context.Context, backend dispatch.AsyncPollBackend, jobID string) (*http.Request, error)
	parseStatus(body []byte) (pollOutcome, error)
	backoffBase() time.Duration
	backoffCap() time.Duration
	providerName() string
}

type pollOutcome struct {
	state pollState
	text  string
	msg   string
}

type pollState int

const (
	stateInProgress pollState = iota
	stateCompleted
	stateFailed
)

// ResearchPersister fire-and-forget persists a completed async-poll payload
// and returns the path written, or "" on failure (persistence must never
// fail the call).
type ResearchPersister interface {
	PersistResearch(model string, payload any) (path string, err error)
}

type Dispatcher struct {
	Backend dispatch.AsyncPollBackend
	Client  *http.Client
	Persist ResearchPersister

	Metrics *obs.Metrics
	Logger  *slog.Logger
}

func New(backend dispatch.AsyncPollBackend, persist ResearchPersister, metrics *obs.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Backend: backend, Client: &http.Client{}, Persist: persist, Metrics: metrics, Logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()

	ctx, span := otel.Tracer(obs.Tracer).Start(ctx, "squall.dispatch.async", trace.WithAttributes(
		attribute.String("model", req.ProviderModelID),
		attribute.String("provider", string(d.Backend.Provider)),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	if d.Logger != nil {
		d.Logger.Debug("async dispatch started", "correlation_id", correlationID, "model", req.ProviderModelID, "provider", d.Backend.Provider)
	}

	result, err := d.dispatch(ctx, req, start)

	outcome := asyncOutcome(result, err)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	if d.Metrics != nil {
		d.Metrics.AsyncDispatchDuration.WithLabelValues(string(d.Backend.Provider), outcome).Observe(time.Since(start).Seconds())
	}
	if d.Logger != nil {
		d.Logger.Debug("async dispatch finished", "correlation_id", correlationID, "outcome", outcome, "latency_ms", time.Since(start).Milliseconds())
	}
	return result, err
}

// asyncOutcome projects a dispatch result onto the closed
// success/partial/timeout/error label vocabulary the async-poll dispatch
// histogram is bucketed by.
func asyncOutcome(result dispatch.Result, err error) string {
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

func (d *Dispatcher) dispatch(ctx context.Context, req dispatch.Request, start time.Time) (dispatch.Result, error) {
	var dl dialect
	switch d.Backend.Provider {
	case dispatch.AsyncProviderOpenAIResponses:
		dl = openAIResponsesDialect{}
	case dispatch.AsyncProviderGeminiInteraction:
		dl = geminiInteractionsDialect{}
	default:
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("asyncpoll: unknown provider %q", d.Backend.Provider))
	}

	remaining := time.Until(req.Deadline)
	if remaining < 5*time.Second {
		return dispatch.Result{}, dispatch.NewTimeout(time.Since(start).Milliseconds())
	}

	jobID, err := d.launch(ctx, req, dl)
	if err != nil {
		return dispatch.Result{}, err
	}

	text, err := d.pollUntilDone(ctx, req, dl, jobID)
	if err != nil {
		return dispatch.Result{}, err
	}

	latency := time.Since(start).Milliseconds()
	suffix := ""
	if d.Persist != nil {
		path, perr := d.Persist.PersistResearch(req.ProviderModelID, map[string]any{
			"model":    req.ProviderModelID,
			"provider": dl.providerName(),
			"job_id":   jobID,
			"text":     text,
		})
		if perr == nil && path != "" {
			suffix = "\n\n---\nFull result persisted to: " + path
		}
	}

	return dispatch.Result{
		Text:      text + suffix,
		Model:     req.ProviderModelID,
		Provider:  dl.providerName(),
		LatencyMS: latency,
	}, nil
}

func (d *Dispatcher) launch(ctx context.Context, req dispatch.Request, dl dialect) (string, error) {
	remaining := time.Until(req.Deadline)
	budget := remaining
	if budget > 30*time.Second {
		budget = 30 * time.Second
	}
	launchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	httpReq, err := dl.launchRequest(req, d.Backend)
	if err != nil {
		return "", dispatch.NewOther(fmt.Sprintf("building launch request: %v", err))
	}
	httpReq = httpReq.WithContext(launchCtx)

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		if launchCtx.Err() != nil {
			return "", dispatch.NewTimeout(0)
		}
		return "", dispatch.WrapConnection(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", dispatch.NewAuthFailed(dl.providerName(), string(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", dispatch.NewRateLimited(dl.providerName())
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", dispatch.NewUpstream(dl.providerName(), string(body), resp.StatusCode)
	}

	jobID, err := dl.extractJobID(body)
	if err != nil {
		return "", dispatch.NewSchemaParse(err.Error())
	}
	return jobID, nil
}

func (d *Dispatcher) pollUntilDone(ctx context.Context, req dispatch.Request, dl dialect, jobID string) (string, error) {
	attempt := 0
	consecutiveFailures := 0

	for {
		remaining := time.Until(req.Deadline)
		delay := nextDelay(dl.backoffBase(), dl.backoffCap(), attempt)
		if remaining < delay {
			return "", dispatch.NewTimeout(0)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", dispatch.NewCancelled(0)
		}
		attempt++

		remaining = time.Until(req.Deadline)
		budget := remaining
		if budget > 30*time.Second {
			budget = 30 * time.Second
		}
		pollCtx, cancel := context.WithTimeout(ctx, budget)

		httpReq, err := dl.pollRequest(pollCtx, d.Backend, jobID)
		if err != nil {
			cancel()
			return "", dispatch.NewOther(fmt.Sprintf("building poll request: %v", err))
		}
		httpReq = httpReq.WithContext(pollCtx)

		resp, err := d.Client.Do(httpReq)
		if err != nil {
			cancel()
			consecutiveFailures++
			if consecutiveFailures >= maxFailures {
				return "", dispatch.NewPollFailed(dl.providerName(), jobID, "too many consecutive transport failures")
			}
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
		resp.Body.Close()
		cancel()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", dispatch.NewAuthFailed(dl.providerName(), string(body))
		case resp.StatusCode == http.StatusTooManyRequests:
			consecutiveFailures++
			if consecutiveFailures >= maxFailures {
				return "", dispatch.NewPollFailed(dl.providerName(), jobID, "too many consecutive rate limits")
			}
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			consecutiveFailures++
			if consecutiveFailures >= maxFailures {
				return "", dispatch.NewPollFailed(dl.providerName(), jobID, "too many consecutive non-2xx responses")
			}
			continue
		}

		consecutiveFailures = 0
		if len(body) >= maxPollBody {
			return "", dispatch.NewUpstream(dl.providerName(), "poll body too large", resp.StatusCode)
		}

		outcome, err := dl.parseStatus(body)
		if err != nil {
			return "", dispatch.NewSchemaParse(err.Error())
		}
		switch outcome.state {
		case stateCompleted:
			return outcome.text, nil
		case stateFailed:
			return "", dispatch.NewAsyncJobFailed(dl.providerName(), outcome.msg)
		case stateInProgress:
			continue
		}
	}
}

// nextDelay computes min(base * 1.5^attempt, cap) directly, rather than
// through a generic backoff library: the poll loop must recompute
// "remaining" after every sleep (see pollUntilDone), an interleaving a
// higher-level Retry() loop does not expose a hook for.
func nextDelay(base, cap_ time.Duration, attempt int) time.Duration {
	d := float64(base) * math.Pow(1.5, float64(attempt))
	if d > float64(cap_) {
		d = float64(cap_)
	}
	return time.Duration(d)
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
