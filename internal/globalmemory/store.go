// Package globalmemory contracts the out-of-scope composite cross-project
// memory database: squall only defines what a rollup record looks like and
// how to fire one off, never the real multi-writer schema that database
// would need.
package globalmemory

import "time"

// Record is one rollup entry the memory actor forwards after a successful
// in-process event-log write.
type Record struct {
	ModelKey    string
	ProjectPath string
	Outcome     string // "success" | "error"
	LatencySec  float64
	Timestamp   time.Time
}

// Store is the contract a composite cross-project memory database would
// satisfy. Implementations must not block the caller for long; the memory
// actor calls Record in a background goroutine and only logs failures.
type Store interface {
	Record(rec Record) error
	Close() error
}
