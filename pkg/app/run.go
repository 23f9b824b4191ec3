// Package app provides the shared entry point for the squall binary: it
// loads configuration, wires every component, and blocks on the core.App
// lifecycle until a shutdown signal arrives.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"

	"github.com/dsado88/squall/internal/config"
	"github.com/dsado88/squall/internal/core"
	"github.com/dsado88/squall/internal/obs"
)

// defaultDebugAddr is the diagnostics HTTP surface's default bind
// address; SPEC_FULL.md names /healthz, /metrics, /debug/registry but
// leaves the listen address to deployment, so squall defaults to a
// loopback-friendly port and lets an operator override it.
const defaultDebugAddr = ":8081"

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory (event
	// logs, pattern files, the optional global memory database).
	DataDir string

	// Workspace overrides the default working directory a tool call
	// falls back to when it omits one.
	Workspace string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// DebugAddr overrides the diagnostics HTTP surface's listen
	// address. Defaults to defaultDebugAddr.
	DebugAddr string
}

// Run loads configuration, wires every component, starts the fixed
// module set, and blocks until SIGINT/SIGTERM triggers an ordered
// shutdown.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := obs.NewLogger(params.LogLevel)

	tracerProvider, shutdownTracing, err := obs.NewTracerProvider(context.Background())
	if err != nil {
		return fmt.Errorf("starting tracer provider: %w", err)
	}
	otel.SetTracerProvider(tracerProvider)
	defer func() { _ = shutdownTracing(context.Background()) }()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	workspace := params.Workspace
	if workspace == "" {
		workspace = DefaultWorkspace()
	}
	debugAddr := params.DebugAddr
	if debugAddr == "" {
		debugAddr = defaultDebugAddr
	}

	appCtx := core.NewAppContext(logger, dataDir)

	w, err := wire(cfg, appCtx, debugAddr)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}

	logger.Info("squall starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"data_dir", dataDir,
		"workspace", workspace,
		"debug_addr", debugAddr,
		"models", w.Surface.ListModels(),
	)

	return w.App.Run()
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/squall/squall.yaml → ~/.config/squall/squall.yaml → ./squall.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "squall", "squall.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "squall", "squall.yaml"))
	}

	candidates = append(candidates, "squall.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/squall if set, otherwise ~/.local/share/squall per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "squall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "squall")
}

// DefaultWorkspace returns the current working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
