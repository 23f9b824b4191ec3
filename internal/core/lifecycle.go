package core

import "context"

// Starter is implemented by modules that need to start background work
// (goroutines, listeners, connections). Called after all modules are
// appended, in append order.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that support live configuration
// reload without a full restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}
