// Package clidispatch runs a local subprocess agent, feeding the prompt on
// stdin and bounding stdout/stderr, with process-group kill discipline so
// a cap breach or deadline never leaves a zombie or a pipe deadlock.
package clidispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/obs"
	"github.com/dsado88/squall/internal/parsers"
	"github.com/dsado88/squall/internal/procutil"
)

// maxStreamBytes caps stdout and stderr independently. A breach on either
// stream triggers an immediate process-group kill to avoid a pipe-full
// deadlock when a grandchild still holds the other pipe open.
const maxStreamBytes = 2 << 20 // 2 MiB

// drainGrace caps how long the adapter waits for pipes to drain after a
// group kill before giving up on any further output.
const drainGrace = 500 * time.Millisecond

// drainPollInterval is how often awaitGroupExit re-checks the killed
// group's liveness during the drain grace window.
const drainPollInterval = 10 * time.Millisecond

// RawPersistPolicy controls when a JSON envelope of the raw invocation is
// written under .squall/raw/.
type RawPersistPolicy string

const (
	RawAlways    RawPersistPolicy = "always"
	RawOnFailure RawPersistPolicy = "on_failure"
	RawNever     RawPersistPolicy = "never"
)

// RawPersister is implemented by internal/persist to fire-and-forget write
// the raw-capture envelope. Declared as an interface here to keep this
// package free of a direct dependency on the working-directory layout.
type RawPersister interface {
	PersistRaw(workingDir string, envelope RawEnvelope)
}

// RawEnvelope is the JSON shape written to .squall/raw/.
type RawEnvelope struct {
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exit_code"`
	TimingMS    int64  `json:"timing_ms"`
	Model       string `json:"model"`
	Provider    string `json:"provider"`
	ParseStatus string `json:"parse_status"`
}

type Dispatcher struct {
	Backend    dispatch.CLIBackend
	Provider   string
	ParserName string
	RawPolicy  RawPersistPolicy
	RawPersist RawPersister // nil disables persistence entirely

	Metrics *obs.Metrics
	Logger  *slog.Logger
}

func New(backend dispatch.CLIBackend, provider, parserName string, policy RawPersistPolicy, persist RawPersister, metrics *obs.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Backend: backend, Provider: provider, ParserName: parserName, RawPolicy: policy, RawPersist: persist, Metrics: metrics, Logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error) {
	start := time.Now()

	ctx, span := otel.Tracer(obs.Tracer).Start(ctx, "squall.dispatch.cli", trace.WithAttributes(
		attribute.String("model", req.ProviderModelID),
		attribute.String("provider", d.Provider),
		attribute.String("parser", d.ParserName),
	))
	defer span.End()

	result, err := d.dispatch(ctx, req, start)

	outcome := dispatchOutcome(result, err)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	if d.Metrics != nil {
		d.Metrics.CLIDispatchDuration.WithLabelValues(d.Provider, outcome).Observe(time.Since(start).Seconds())
	}
	return result, err
}

// dispatchOutcome projects a dispatch result onto the closed
// success/partial/timeout/error label vocabulary the CLI dispatch
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

func (d *Dispatcher) dispatch(ctx context.Context, req dispatch.Request, start time.Time) (dispatch.Result, error) {
	remaining := time.Until(req.Deadline)
	if remaining <= 100*time.Millisecond {
		return dispatch.Result{}, dispatch.NewTimeout(0)
	}

	args := make([]string, len(d.Backend.Args))
	for i, a := range d.Backend.Args {
		args[i] = strings.ReplaceAll(a, "{model}", req.ProviderModelID)
	}

	cmd := exec.Command(d.Backend.Executable, args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("spawn: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("spawn: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("spawn: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("spawn: %v", err))
	}

	if _, err := stdin.Write([]byte(req.Prompt)); err != nil {
		// The child may have exited already; fall through to exit handling.
	}
	stdin.Close()

	var wg sync.WaitGroup
	var outBuf, errBuf boundedBuffer
	overflow := make(chan struct{}, 1)
	signalOverflow := func() {
		select {
		case overflow <- struct{}{}:
		default:
		}
	}

	wg.Add(2)
	go func() { defer wg.Done(); copyBounded(&outBuf, stdout, signalOverflow) }()
	go func() { defer wg.Done(); copyBounded(&errBuf, stderr, signalOverflow) }()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	var waitErr error
	var timedOut, overflowed bool

	select {
	case waitErr = <-done:
	case <-overflow:
		overflowed = true
		killGroup(cmd)
		waitErr = <-done
	case <-timer.C:
		timedOut = true
		killGroup(cmd)
		waitErr = awaitGroupExit(done, cmd.Process.Pid)
	case <-ctxDone(req.Cancel):
		timedOut = true
		killGroup(cmd)
		waitErr = awaitGroupExit(done, cmd.Process.Pid)
	}

	wg.Wait()
	elapsed := time.Since(start).Milliseconds()

	if timedOut {
		return dispatch.Result{}, dispatch.NewTimeout(elapsed)
	}
	if overflowed {
		d.persistRaw(req, outBuf.String(), errBuf.String(), -1, elapsed, "output_overflow")
		return dispatch.Result{}, dispatch.NewUpstream(d.Provider, "output_overflow", 0)
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			d.persistRaw(req, outBuf.String(), errBuf.String(), -1, elapsed, "spawn_error")
			return dispatch.Result{}, dispatch.NewOther(fmt.Sprintf("spawn_error: %v", waitErr))
		}
	}

	if exitCode != 0 {
		d.persistRaw(req, outBuf.String(), errBuf.String(), exitCode, elapsed, "process_exit")
		return dispatch.Result{}, dispatch.NewProcessExit(exitCode, errBuf.String())
	}

	parser, err := parsers.Lookup(d.ParserName)
	if err != nil {
		d.persistRaw(req, outBuf.String(), errBuf.String(), exitCode, elapsed, "parse_error")
		return dispatch.Result{}, dispatch.NewSchemaParse(err.Error())
	}
	text, err := parser.Parse(outBuf.Bytes())
	if err != nil {
		d.persistRaw(req, outBuf.String(), errBuf.String(), exitCode, elapsed, "parse_error")
		return dispatch.Result{}, dispatch.NewSchemaParse(err.Error())
	}

	d.persistRaw(req, outBuf.String(), errBuf.String(), exitCode, elapsed, "ok")
	return dispatch.Result{
		Text:      text,
		Model:     req.ProviderModelID,
		Provider:  d.Provider,
		LatencyMS: elapsed,
	}, nil
}

func (d *Dispatcher) persistRaw(req dispatch.Request, stdout, stderr string, exitCode int, elapsedMS int64, parseStatus string) {
	if d.RawPersist == nil {
		return
	}
	shouldWrite := d.RawPolicy == RawAlways || (d.RawPolicy != RawNever && parseStatus != "ok")
	if !shouldWrite {
		return
	}
	d.RawPersist.PersistRaw(req.WorkingDir, RawEnvelope{
		Stdout:      stdout,
		Stderr:      stderr,
		ExitCode:    exitCode,
		TimingMS:    elapsedMS,
		Model:       req.ProviderModelID,
		Provider:    d.Provider,
		ParseStatus: parseStatus,
	})
}

// killGroup sends SIGKILL to the negative process-group id so the leader
// and every descendant it spawned are reaped together.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// awaitGroupExit waits up to drainGrace for the just-killed group leader
// to actually die, polling real liveness via procutil rather than
// sleeping blind: a leader that is reaped quickly lets wg.Wait() observe
// its closed pipes well before the full grace window elapses, while a
// leader stuck past a SIGKILL (rare, but e.g. uninterruptible I/O) still
// gets the full window before the caller gives up on its output.
func awaitGroupExit(done <-chan error, pid int) error {
	if pid <= 0 {
		select {
		case err := <-done:
			return err
		case <-time.After(drainGrace):
			return nil
		}
	}
	deadline := time.Now().Add(drainGrace)
	poll := time.NewTicker(drainPollInterval)
	defer poll.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-poll.C:
			if !procutil.PIDAlive(pid) {
				select {
				case err := <-done:
					return err
				case <-time.After(drainPollInterval):
					return nil
				}
			}
			if time.Now().After(deadline) {
				return nil
			}
		}
	}
}

func ctxDone(ctx context.Context) <-chan struct{} {
	if ctx == nil {
		return nil
	}
	return ctx.Done()
}

// boundedBuffer is a bytes.Buffer guarded by a mutex for concurrent
// stdout/stderr draining.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func (b *boundedBuffer) write(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := maxStreamBytes - b.buf.Len()
	if room <= 0 {
		return 0
	}
	if len(p) > room {
		p = p[:room]
	}
	b.buf.Write(p)
	return len(p)
}

func (b *boundedBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// copyBounded reads r in chunks, writing at most maxStreamBytes into dst,
// and invokes onOverflow (once) the moment the cap is exceeded rather than
// waiting for r to close.
func copyBounded(dst *boundedBuffer, r io.Reader, onOverflow func()) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			written := dst.write(chunk[:n])
			if written < n || dst.len() >= maxStreamBytes {
				onOverflow()
			}
		}
		if err != nil {
			return
		}
	}
}
