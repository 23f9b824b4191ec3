package app

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/dsado88/squall/internal/asyncpoll"
	"github.com/dsado88/squall/internal/clidispatch"
	"github.com/dsado88/squall/internal/config"
	"github.com/dsado88/squall/internal/core"
	"github.com/dsado88/squall/internal/cron"
	"github.com/dsado88/squall/internal/debugserver"
	"github.com/dsado88/squall/internal/globalmemory/sqlitestore"
	"github.com/dsado88/squall/internal/memoryactor"
	"github.com/dsado88/squall/internal/obs"
	"github.com/dsado88/squall/internal/persist"
	"github.com/dsado88/squall/internal/registry"
	"github.com/dsado88/squall/internal/review"
	"github.com/dsado88/squall/internal/toolsurface"
)

// wired bundles every statically-constructed component, handed back to
// Run so it can expose the tool surface to whatever transport embeds it
// (an MCP shell, a test harness) and block on the core.App lifecycle.
type wired struct {
	App     *core.App
	Surface *toolsurface.Surface
	Metrics *obs.Metrics
}

// wire constructs every squall component from resolved configuration and
// appends it to a fresh core.App in start order: the registry and review
// executor have no background lifecycle of their own, then the memory
// actor, the debug HTTP surface, and the cron scheduler. There is no
// dynamic plugin registry — the module set is fixed, named directly here.
func wire(cfg *config.Config, appCtx *core.AppContext, debugAddr string) (*wired, error) {
	entries, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	limits := config.ResolveLimits(cfg)

	layout := persist.NewLayout()
	metrics := obs.NewMetrics()

	reg, err := registry.New(entries, limits, registry.Deps{
		RawPersist: persist.RawPersisterAdapter{Layout: layout},
		RawPolicy:  rawPersistPolicy(cfg),
		ResearchFor: func(workingDir string) asyncpoll.ResearchPersister {
			return persist.ResearchPersisterForDir{Layout: layout, WorkingDir: workingDir}
		},
		Metrics: metrics,
		Logger:  appCtx.Logger.With("component", "dispatch"),
	})
	if err != nil {
		return nil, err
	}

	memStore := persist.NewMemoryStore(appCtx.DataDir)
	actor := memoryactor.New(memStore, appCtx.Logger.With("component", "memoryactor"), metrics)

	if dbPath := globalMemoryPath(appCtx.DataDir); dbPath != "" {
		gstore, err := sqlitestore.Open(dbPath)
		if err != nil {
			appCtx.Logger.Warn("global memory rollup unavailable", "error", err)
		} else {
			actor = actor.WithGlobalMemory(gstore, appCtx.DataDir)
		}
	}

	executor := review.New(reg, actor, layout, appCtx.Logger.With("component", "review"), metrics)

	surface := toolsurface.New(reg, executor, actor)

	dbgSrv := debugserver.New(reg, actor, metrics)
	httpSrv := &http.Server{Addr: debugAddr, Handler: dbgSrv}

	scheduler := cron.NewScheduler(appCtx.Logger.With("component", "cron"))
	if err := scheduler.RegisterJob(&cron.PruneEventsJob{
		Actor:  actor,
		Logger: appCtx.Logger.With("component", "cron"),
	}); err != nil {
		return nil, err
	}

	app := core.NewApp(appCtx.Logger)
	app.AppendModule("registry", staticModule{id: "registry"})
	app.AppendModule("review", staticModule{id: "review"})
	app.AppendModule("memoryactor", &memoryActorModule{actor: actor})
	app.AppendModule("debugserver", &debugServerModule{srv: httpSrv, logger: appCtx.Logger})
	app.AppendModule("cron", &cronModule{scheduler: scheduler})

	return &wired{App: app, Surface: surface, Metrics: metrics}, nil
}

// rawPersistPolicy maps the validated YAML string onto clidispatch's typed
// policy, defaulting to "on_failure" when unset.
func rawPersistPolicy(cfg *config.Config) clidispatch.RawPersistPolicy {
	if cfg.Security == nil || cfg.Security.RawPersistPolicy == "" {
		return clidispatch.RawOnFailure
	}
	return clidispatch.RawPersistPolicy(cfg.Security.RawPersistPolicy)
}

// globalMemoryPath returns the optional cross-project rollup database
// path under dataDir. squall never requires this collaborator — it is an
// optional, out-of-scope composite database per internal/globalmemory's
// contract — so failure to open it is logged, not fatal.
func globalMemoryPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, ".squall", "global", "rollup.db")
}

// staticModule satisfies core.Module for a component with no start/stop
// behaviour of its own (the registry and the review executor are plain
// values with no background goroutine or listener).
type staticModule struct {
	id string
}

func (m staticModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: core.ModuleID(m.id)}
}

// memoryActorModule adapts *memoryactor.Actor's Close method to
// core.Stopper; the actor's background goroutine is already running by
// the time New returns, so there is nothing to do on Start.
type memoryActorModule struct {
	actor *memoryactor.Actor
}

func (m *memoryActorModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "memoryactor"}
}

func (m *memoryActorModule) Stop(ctx context.Context) error {
	return m.actor.Close(ctx)
}

// debugServerModule runs the diagnostics HTTP surface as a background
// listener, shut down gracefully on Stop.
type debugServerModule struct {
	srv    *http.Server
	logger interface {
		Error(msg string, args ...any)
	}
}

func (m *debugServerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "debugserver"}
}

func (m *debugServerModule) Start() error {
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("debug server exited", "error", err)
		}
	}()
	return nil
}

func (m *debugServerModule) Stop(ctx context.Context) error {
	return debugserver.RegisterShutdownHook(ctx, m.srv)
}

// cronModule adapts *cron.Scheduler to core.Starter/core.Stopper.
type cronModule struct {
	scheduler *cron.Scheduler
}

func (m *cronModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *cronModule) Start() error {
	return m.scheduler.Start()
}

func (m *cronModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}
