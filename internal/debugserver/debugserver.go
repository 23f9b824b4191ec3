// Package debugserver implements the operator-facing diagnostics HTTP
// surface named in SPEC_FULL.md §6's expansion: healthz, prometheus
// metrics, and a redacted registry dump. It is not the MCP tool surface
// (internal/toolsurface) and is never consulted by it. Grounded on
// internal/gateway/{server,health,metrics}.go's chi-router shape.
package debugserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/obs"
	"github.com/dsado88/squall/internal/registry"
)

// Registry is the subset of *registry.Registry the debug surface reads.
type Registry interface {
	ListModels() []registry.ModelSummary
	Lookup(key string) (dispatch.ModelEntry, error)
	Keys() []string
}

// ActorHealth is the subset of *memoryactor.Actor the health check needs.
type ActorHealth interface {
	// Stats is already exposed for the review hard gate; calling it with
	// an empty model name costs one round trip through the actor's
	// single-writer loop and confirms it is still servicing commands.
	Stats(model string) (sampleCount int, successRate float64, ok bool)
}

// Server wraps a chi router exposing /healthz, /metrics, /debug/registry.
type Server struct {
	router  chi.Router
	reg     Registry
	actor   ActorHealth
	metrics *obs.Metrics
}

func New(reg Registry, actor ActorHealth, metrics *obs.Metrics) *Server {
	s := &Server{reg: reg, actor: actor, metrics: metrics}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/debug/registry", s.handleDebugRegistry)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthzResponse struct {
	Status      string `json:"status"`
	MemoryActor string `json:"memory_actor"`
}

// handleHealthz reports "ok" unless the memory actor doesn't answer a
// Stats query within two seconds, in which case it reports "degraded" —
// the actor's single-writer loop has wedged or exited.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{Status: "ok", MemoryActor: "ok"}

	if s.actor != nil {
		done := make(chan struct{})
		go func() {
			s.actor.Stats("__healthcheck__")
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			resp.Status = "degraded"
			resp.MemoryActor = "not responding"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "degraded" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type debugRegistryResponse struct {
	Models []registry.ModelSummary `json:"models"`
}

func (s *Server) handleDebugRegistry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(debugRegistryResponse{Models: s.reg.ListModels()})
}

// RegisterShutdownHook is a convenience for callers wiring this server's
// http.Server into core.App's Stopper lifecycle.
func RegisterShutdownHook(ctx context.Context, srv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
