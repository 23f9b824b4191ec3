// Package obs wires squall's ambient observability stack — structured
// logging, prometheus metrics, and otel tracing — across the dispatch,
// registry, review, and memory-actor components. None of it is part of
// the tool-surface contract; it exists purely so operators can see what
// the process is doing.
package obs

import (
	"log/slog"
	"os"

	"github.com/dsado88/squall/internal/security"
)

// NewLogger builds the process-wide slog.Logger: a JSON handler wrapped in
// security.RedactingHandler, so no secret reaches stdout regardless of
// which component logged it. Grounded on internal/core.AppContext's
// module-scoped child-logger idiom.
func NewLogger(level slog.Level) *slog.Logger {
	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	redacted := security.NewRedactingHandler(base, security.NewRedactor())
	return slog.New(redacted)
}

// ForComponent returns a child logger tagged with a "component" attribute,
// matching internal/core.AppContext.ForModule's convention.
func ForComponent(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
