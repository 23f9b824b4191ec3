// Package core provides the App lifecycle foundation for squall: a
// small, fixed set of modules (registry, review executor, memory actor,
// debug server, cron scheduler) wired up in pkg/app and started/stopped
// in order.
package core

import "log/slog"

// AppContext carries shared resources available to modules at
// construction and runtime.
type AppContext struct {
	Logger *slog.Logger

	// DataDir is the root directory for persistent component data
	// (event logs, pattern files, result JSON, the optional global
	// memory SQLite database).
	DataDir string

	parentLogger *slog.Logger
}

// NewAppContext creates a new AppContext with the given base logger and
// data directory.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		parentLogger: logger,
	}
}

// ForModule returns a new AppContext scoped to the given module ID, with
// a child logger that includes the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	return &AppContext{
		Logger:       ctx.parentLogger.With("module", string(id)),
		DataDir:      ctx.DataDir,
		parentLogger: ctx.parentLogger,
	}
}
