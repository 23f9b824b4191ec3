package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dsado88/squall/internal/dispatch"
	"github.com/dsado88/squall/internal/obs"
	"github.com/dsado88/squall/internal/registry"
)

type fakeRegistry struct{}

func (fakeRegistry) ListModels() []registry.ModelSummary {
	return []registry.ModelSummary{{Name: "gpt-fast", Provider: "openai", BackendName: "http"}}
}

func (fakeRegistry) Lookup(key string) (dispatch.ModelEntry, error) {
	return dispatch.ModelEntry{Key: key}, nil
}

func (fakeRegistry) Keys() []string { return []string{"gpt-fast"} }

type fakeActor struct{ wedged bool }

func (f fakeActor) Stats(model string) (int, float64, bool) {
	if f.wedged {
		select {}
	}
	return 0, 0, false
}

func TestHealthz_OK(t *testing.T) {
	s := New(fakeRegistry{}, fakeActor{}, obs.NewMetrics())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp healthzResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestDebugRegistry_ListsModels(t *testing.T) {
	s := New(fakeRegistry{}, fakeActor{}, obs.NewMetrics())
	req := httptest.NewRequest(http.MethodGet, "/debug/registry", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp debugRegistryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].Name != "gpt-fast" {
		t.Errorf("unexpected models: %+v", resp.Models)
	}
}

func TestMetrics_Exposed(t *testing.T) {
	s := New(fakeRegistry{}, fakeActor{}, obs.NewMetrics())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
