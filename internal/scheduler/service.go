package scheduler

import (
	"context"

	"github.com/me/govm/pkg/model"
)

// Service is the goroutine-safe face of a running scheduler, as used by
// the API server.
type Service interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration. Used for testing.
	Tick(ctx context.Context) error

	// Receive queues instruction messages and returns their ids.
	Receive(msgs []*model.InstructionMessage) []string

	// HasUnitType reports whether t names the control type or a
	// configured unit type.
	HasUnitType(t model.UnitType) bool

	// Backpressure reports whether producers should hold off.
	Backpressure() bool

	// Snapshot returns the current scheduler state.
	Snapshot() model.Snapshot

	// Object returns the state of one logical object.
	Object(id model.LogicalObjectID) (model.ObjectSnapshot, bool)

	// Err returns the error that halted the scheduler, if any.
	Err() error
}

var _ Service = (*Loop)(nil)
