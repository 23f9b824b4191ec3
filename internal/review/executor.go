// Package review implements the parallel review executor: it selects
// models, applies the quality hard gate, spawns one dispatch per model,
// races them against a global cutoff with cooperative cancellation, and
// persists and reports the outcome.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/obs"
	"github.com/dsado88/squall/internal/persist"
)

const (
	MaxModels    = 20
	MaxTimeout   = 600 * time.Second
	CutoffBuffer = 15 * time.Second
	CancelGrace  = 3 * time.Second
	DrainGrace   = 5 * time.Second
)

// Dispatcher is the subset of *registry.Registry the executor depends on,
// declared as an interface so tests can supply a fake without a real
// admission fabric.
type Dispatcher interface {
	Dispatch(ctx context.Context, key string, req dispatch.Request) (dispatch.Result, error)
	Lookup(key string) (dispatch.ModelEntry, error)
	Keys() []string
}

// QualityGate is the subset of the memory actor the executor consults for
// the hard gate and reports results to, declared as an interface to avoid
// a dependency cycle with internal/memoryactor.
type QualityGate interface {
	Stats(model string) (sampleCount int, successRate float64, ok bool)
	ReportResult(model, provider string, latencyMS int64, status, reasonTag string, partial bool, errMsg string, promptLen int)
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type ResultEntry struct {
	Model     string  `json:"model"`
	Provider  string  `json:"provider"`
	Status    Status  `json:"status"`
	Text      *string `json:"response,omitempty"`
	Error     *string `json:"error,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	LatencyMS int64   `json:"latency_ms"`
	Partial   bool    `json:"partial"`
}

type Summary struct {
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Cutoff     int `json:"cutoff"`
	Partial    int `json:"partial"`
	NotStarted int `json:"not_started"`
}

type InvestigationContext struct {
	Summary string   `json:"summary"`
	Files   []string `json:"files"`
}

type Response struct {
	RequestID            string                `json:"request_id"`
	Results              []ResultEntry         `json:"results"`
	NotStarted           []string              `json:"not_started"`
	CutoffSeconds        float64               `json:"cutoff_seconds"`
	ElapsedMS            int64                 `json:"elapsed_ms"`
	ResultsFile          string                `json:"results_file,omitempty"`
	PersistError         string                `json:"persist_error,omitempty"`
	InvestigationContext *InvestigationContext `json:"investigation_context,omitempty"`
	Warnings             []string              `json:"warnings,omitempty"`
	Summary              Summary               `json:"summary"`
}

// Request is the input to Run.
type Request struct {
	Prompt                string
	Models                []string // caller-supplied subset; empty means use DefaultModels
	DefaultModels         []string
	CutoffSeconds         float64
	PerModelSystemPrompts map[string]string
	PerModelTimeoutSecs   map[string]float64
	SharedSystemPrompt    string
	Deep                  bool
	Temperature           *float64
	MaxTokens             *int
	ReasoningEffort       dispatch.ReasoningEffort
	WorkingDir            string
	InvestigationContext  *InvestigationContext
}

type taskResult struct {
	model string
	entry ResultEntry
}

type Executor struct {
	Registry Dispatcher
	Memory   QualityGate
	Layout   *persist.Layout
	Logger   *slog.Logger
	Metrics  *obs.Metrics
}

func New(reg Dispatcher, mem QualityGate, layout *persist.Layout, logger *slog.Logger, metrics *obs.Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Registry: reg, Memory: mem, Layout: layout, Logger: logger, Metrics: metrics}
}

func (ex *Executor) Run(ctx context.Context, req Request) Response {
	start := time.Now()
	requestID := ulid.Make().String()

	ctx, span := otel.Tracer(obs.Tracer).Start(ctx, "squall.review", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Bool("deep", req.Deep),
	))
	defer span.End()

	ex.Logger.Debug("review started", "request_id", requestID, "deep", req.Deep, "models", req.Models)

	cutoff := req.CutoffSeconds
	if req.Deep && cutoff == 0 {
		cutoff = 600
	}
	if cutoff <= 0 {
		cutoff = 60
	}
	if time.Duration(cutoff*float64(time.Second)) > MaxTimeout {
		cutoff = MaxTimeout.Seconds()
	}

	reasoning := req.ReasoningEffort
	if req.Deep && reasoning == dispatch.ReasoningUnset {
		reasoning = dispatch.ReasoningHigh
	}
	maxTokens := req.MaxTokens
	if req.Deep && maxTokens == nil {
		v := 16384
		maxTokens = &v
	}

	var warnings []string

	targets, notStarted := ex.selectModels(req)
	targets, gateWarnings := ex.applyHardGate(targets)
	warnings = append(warnings, gateWarnings...)
	warnings = append(warnings, ex.validateOverrideKeys(req, targets)...)

	span.SetAttributes(attribute.Int("model_count", len(targets)))

	internalDeadline := start.Add(time.Duration(cutoff*float64(time.Second)) + CutoffBuffer)
	cutoffAt := start.Add(time.Duration(cutoff * float64(time.Second)))

	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan taskResult, len(targets))

	for _, model := range targets {
		model := model
		go func() {
			defer func() {
				if p := recover(); p != nil {
					results <- taskResult{model: model, entry: ResultEntry{
						Model: model, Status: StatusError, Reason: "panic",
						Error: strPtr(fmt.Sprintf("panic: %v", p)),
					}}
				}
			}()
			results <- taskResult{model: model, entry: ex.dispatchOne(cancelCtx, req, model, internalDeadline, reasoning, maxTokens)}
		}()
	}

	collected := make(map[string]ResultEntry, len(targets))
	cutoffTimer := time.NewTimer(time.Until(cutoffAt))
	defer cutoffTimer.Stop()

	remaining := len(targets)
raceLoop:
	for remaining > 0 {
		select {
		case r := <-results:
			collected[r.model] = r.entry
			remaining--
		case <-cutoffTimer.C:
			cancel() // cooperative cancel: dispatches flush accumulated text as partial
			break raceLoop
		}
	}

	if remaining > 0 {
		// Grace period: streaming tasks observe the cancelled shared
		// context at their next suspension point and flush accumulated
		// text as a partial result; collect whatever arrives.
		ex.drain(results, collected, CancelGrace, &remaining)
		// Remaining tasks are now considered aborted; give them one more
		// short window to actually finish unwinding (process-group kill,
		// pipe drain) before giving up on them.
		ex.drain(results, collected, DrainGrace, &remaining)
	}

	entries := make([]ResultEntry, 0, len(targets))
	var succeeded, failed, cutoffCount, partialCount int
	for _, m := range targets {
		e, ok := collected[m]
		if !ok {
			elapsed := time.Since(start).Milliseconds()
			e = ResultEntry{Model: m, Status: StatusError, Reason: "cutoff", LatencyMS: elapsed}
		}
		if e.Status == StatusSuccess {
			succeeded++
			if e.Reason == "partial" {
				partialCount++
			}
		} else {
			failed++
			if e.Reason == "cutoff" {
				cutoffCount++
			}
		}
		entries = append(entries, e)
		if ex.Memory != nil {
			var errMsg string
			if e.Error != nil {
				errMsg = *e.Error
			}
			go ex.Memory.ReportResult(m, e.Provider, e.LatencyMS, string(e.Status), e.Reason, e.Partial, errMsg, len(req.Prompt))
		}
	}

	resp := Response{
		RequestID:            requestID,
		Results:              entries,
		NotStarted:           notStarted,
		CutoffSeconds:        cutoff,
		ElapsedMS:            time.Since(start).Milliseconds(),
		Warnings:             warnings,
		InvestigationContext: req.InvestigationContext,
		Summary: Summary{
			Succeeded: succeeded, Failed: failed, Cutoff: cutoffCount,
			Partial: partialCount, NotStarted: len(notStarted),
		},
	}

	if ex.Layout != nil {
		if path, err := ex.Layout.WriteReview(req.WorkingDir, resp); err != nil {
			resp.PersistError = err.Error()
		} else {
			resp.ResultsFile = path
		}
	}

	if ex.Metrics != nil {
		ex.Metrics.ReviewDuration.Observe(time.Since(start).Seconds())
	}
	span.SetAttributes(
		attribute.Int("succeeded", succeeded),
		attribute.Int("failed", failed),
	)

	return resp
}

// drain collects completions arriving within grace, updating collected and
// remaining in place, and returns as soon as remaining reaches zero or the
// grace window elapses.
func (ex *Executor) drain(results <-chan taskResult, collected map[string]ResultEntry, grace time.Duration, remaining *int) {
	if *remaining <= 0 {
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for *remaining > 0 {
		select {
		case r := <-results:
			collected[r.model] = r.entry
			*remaining--
		case <-timer.C:
			return
		}
	}
}

func strPtr(s string) *string { return &s }
