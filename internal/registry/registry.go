// Package registry owns the process-wide model map and the per-backend-
// class admission semaphores, and resolves a local model key to a
// concrete dispatcher.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dsado88/squall/internal/asyncpoll"
	"github.com/dsado88/squall/internal/clidispatch"
	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/httpdispatch"
	"github.com/dsado88/squall/internal/obs"
)

// ClassLimits configures the three admission semaphores. Zero values fall
// back to the spec defaults (HTTP=8, CLI=4, AsyncPoll=4).
type ClassLimits struct {
	HTTP      int64
	CLI       int64
	AsyncPoll int64
}

func (c ClassLimits) withDefaults() ClassLimits {
	if c.HTTP <= 0 {
		c.HTTP = 8
	}
	if c.CLI <= 0 {
		c.CLI = 4
	}
	if c.AsyncPoll <= 0 {
		c.AsyncPoll = 4
	}
	return c
}

// Registry is built once at startup from merged configuration and is
// immutable thereafter (the model map never changes after New returns).
type Registry struct {
	byKey       map[string]dispatch.ModelEntry
	idToKey     map[string]string // provider model-id -> key, for memory normalisation
	keys        []string          // sorted, for suggestions and listmodels
	semHTTP     *semaphore.Weighted
	semCLI      *semaphore.Weighted
	semAsync    *semaphore.Weighted
	rawPersist  clidispatch.RawPersister
	rawPolicy   clidispatch.RawPersistPolicy
	researchFor func(workingDir string) asyncpoll.ResearchPersister
	metrics     *obs.Metrics
	logger      *slog.Logger
}

// Deps bundles the fire-and-forget persistence collaborators every
// dispatch adapter needs but which live outside this package to avoid an
// import cycle with internal/persist (which itself depends on
// clidispatch's envelope type), plus the observability collaborators
// handed down to every adapter dispatcherFor constructs.
type Deps struct {
	RawPersist  clidispatch.RawPersister
	RawPolicy   clidispatch.RawPersistPolicy
	ResearchFor func(workingDir string) asyncpoll.ResearchPersister
	Metrics     *obs.Metrics
	Logger      *slog.Logger
}

func New(entries []dispatch.ModelEntry, limits ClassLimits, deps Deps) (*Registry, error) {
	limits = limits.withDefaults()
	r := &Registry{
		byKey:       make(map[string]dispatch.ModelEntry, len(entries)),
		idToKey:     make(map[string]string, len(entries)),
		semHTTP:     semaphore.NewWeighted(limits.HTTP),
		semCLI:      semaphore.NewWeighted(limits.CLI),
		semAsync:    semaphore.NewWeighted(limits.AsyncPoll),
		rawPersist:  deps.RawPersist,
		rawPolicy:   deps.RawPolicy,
		researchFor: deps.ResearchFor,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	for _, e := range entries {
		if e.Disabled {
			continue
		}
		if _, err := parserNameOrDefault(e); err != nil {
			return nil, err
		}
		r.byKey[e.Key] = e
		r.idToKey[e.ProviderID] = e.Key
		r.keys = append(r.keys, e.Key)
	}
	sort.Strings(r.keys)
	return r, nil
}

func parserNameOrDefault(e dispatch.ModelEntry) (string, error) {
	if e.Backend.Kind != dispatch.BackendCLI {
		return "", nil
	}
	// Validated eagerly at construction so a typo'd parser name fails
	// fast at startup rather than on the first dispatch.
	name := e.Parser
	if name == "" {
		name = "raw"
	}
	if name != "raw" && name != "gemini" && name != "codex" {
		return "", fmt.Errorf("registry: model %q names unknown parser %q", e.Key, e.Parser)
	}
	return name, nil
}

// Keys returns the sorted list of configured (non-disabled) model keys.
func (r *Registry) Keys() []string {
	return r.keys
}

// ListModels returns {name, provider, backend_name} for every configured
// model, sorted by key.
type ModelSummary struct {
	Name        string
	Provider    string
	BackendName string
}

func (r *Registry) ListModels() []ModelSummary {
	out := make([]ModelSummary, 0, len(r.keys))
	for _, k := range r.keys {
		e := r.byKey[k]
		out = append(out, ModelSummary{Name: e.Key, Provider: e.Provider, BackendName: string(e.Backend.Kind)})
	}
	return out
}

// Lookup resolves a key to its entry, or a ModelNotFound error carrying
// substring-matched suggestions (sorted, capped at 5).
func (r *Registry) Lookup(key string) (dispatch.ModelEntry, error) {
	e, ok := r.byKey[key]
	if !ok {
		return dispatch.ModelEntry{}, dispatch.NewModelNotFound(key, r.keys)
	}
	return e, nil
}

// KeyForProviderID normalises a legacy provider model-id back to its
// registry key, for the memory actor. Returns the input unchanged if no
// mapping is known.
func (r *Registry) KeyForProviderID(id string) string {
	if k, ok := r.idToKey[id]; ok {
		return k
	}
	return id
}

// EnvDisableVarName computes SQUALL_MODEL_<KEY>_DISABLED for key, applying
// the same sanitisation at config-load time and at check time: uppercase,
// then every rune outside [A-Z0-9_] replaced with '_'.
func EnvDisableVarName(key string) string {
	var b strings.Builder
	b.WriteString("SQUALL_MODEL_")
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	b.WriteString("_DISABLED")
	return b.String()
}

// Dispatch resolves key, acquires the matching class permit under req's
// deadline, and dispatches to the corresponding adapter. The request's
// ProviderModelID is rewritten from the local key to the provider model-id
// before acquiring the permit.
func (r *Registry) Dispatch(ctx context.Context, key string, req dispatch.Request) (dispatch.Result, error) {
	entry, err := r.Lookup(key)
	if err != nil {
		return dispatch.Result{}, err
	}
	req.ProviderModelID = entry.ProviderID

	sem, weight := r.semaphoreFor(entry.Backend.Kind)
	if err := r.acquire(ctx, sem, weight, req.Deadline); err != nil {
		return dispatch.Result{}, err
	}
	class := classLabel(entry.Backend.Kind)
	if r.metrics != nil {
		r.metrics.SemaphoreOccupancy.WithLabelValues(class).Inc()
	}
	defer func() {
		if r.metrics != nil {
			r.metrics.SemaphoreOccupancy.WithLabelValues(class).Dec()
		}
		sem.Release(weight)
	}()

	d, err := r.dispatcherFor(entry, req.WorkingDir)
	if err != nil {
		return dispatch.Result{}, err
	}
	return d.Dispatch(ctx, req)
}

// classLabel projects a backend kind onto the admission-semaphore gauge's
// "class" label.
func classLabel(kind dispatch.BackendKind) string {
	return string(kind)
}

func (r *Registry) semaphoreFor(kind dispatch.BackendKind) (*semaphore.Weighted, int64) {
	switch kind {
	case dispatch.BackendCLI:
		return r.semCLI, 1
	case dispatch.BackendAsyncPoll:
		return r.semAsync, 1
	default:
		return r.semHTTP, 1
	}
}

// acquire blocks until a permit is available or deadline elapses, in which
// case it returns Timeout rather than blocking indefinitely.
func (r *Registry) acquire(ctx context.Context, sem *semaphore.Weighted, weight int64, deadline time.Time) error {
	acquireCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if err := sem.Acquire(acquireCtx, weight); err != nil {
		return dispatch.NewTimeout(0)
	}
	return nil
}

func (r *Registry) dispatcherFor(entry dispatch.ModelEntry, workingDir string) (dispatch.Dispatcher, error) {
	switch entry.Backend.Kind {
	case dispatch.BackendHTTP:
		return httpdispatch.New(*entry.Backend.HTTP, r.metrics, r.logger), nil
	case dispatch.BackendCLI:
		name, _ := parserNameOrDefault(entry)
		return clidispatch.New(*entry.Backend.CLI, entry.Provider, name, r.rawPolicy, r.rawPersist, r.metrics, r.logger), nil
	case dispatch.BackendAsyncPoll:
		var persist asyncpoll.ResearchPersister
		if r.researchFor != nil {
			persist = r.researchFor(workingDir)
		}
		return asyncpoll.New(*entry.Backend.Async, persist, r.metrics, r.logger), nil
	default:
		return nil, fmt.Errorf("registry: model %q has no backend configured", entry.Key)
	}
}
