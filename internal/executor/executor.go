package executor

import (
	"context"

	"github.com/me/govm/pkg/model"
)

// Handle identifies one launched package within its executor.
type Handle string

// Executor is a pluggable backend that runs instruction packages for one
// unit type. Both calls are made from the scheduler's tick loop and must
// not block on execution.
type Executor interface {
	// Type returns the unit type this executor serves.
	Type() model.UnitType

	// Launch accepts a package for execution and returns its handle.
	// An error means the executor cannot accept work at all; execution
	// failures are reported through IsDone and Err instead.
	Launch(ctx context.Context, pkg *model.Package) (Handle, error)

	// IsDone reports whether the package has finished, successfully or not.
	IsDone(h Handle) bool
}

// FailureReporter is implemented by executors that record why a finished
// package failed.
type FailureReporter interface {
	Err(h Handle) error
}

// Forgetter is implemented by executors that keep per-handle state. The
// scheduler calls Forget once a package has been reaped.
type Forgetter interface {
	Forget(h Handle)
}
