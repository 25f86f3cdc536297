package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/me/govm/pkg/model"
)

// ManualExecutor records launched packages and leaves completion to the
// caller. It drives deterministic replays and tests.
type ManualExecutor struct {
	unitType model.UnitType

	mu       sync.Mutex
	next     int
	order    []Handle
	launched map[Handle]*manualEntry
	history  []*model.Package
}

type manualEntry struct {
	pkg  *model.Package
	done bool
	err  error
}

// NewManualExecutor creates a ManualExecutor for unitType.
func NewManualExecutor(unitType model.UnitType) *ManualExecutor {
	return &ManualExecutor{
		unitType: unitType,
		launched: make(map[Handle]*manualEntry),
	}
}

// Type returns the unit type this executor serves.
func (e *ManualExecutor) Type() model.UnitType {
	return e.unitType
}

// Launch records pkg as in flight.
func (e *ManualExecutor) Launch(_ context.Context, pkg *model.Package) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	h := Handle(fmt.Sprintf("%s-%d", e.unitType, e.next))
	e.launched[h] = &manualEntry{pkg: pkg}
	e.order = append(e.order, h)
	e.history = append(e.history, pkg)
	return h, nil
}

// IsDone reports whether h has been completed.
func (e *ManualExecutor) IsDone(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.launched[h]
	return ok && ent.done
}

// Err returns the error h was completed with.
func (e *ManualExecutor) Err(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.launched[h]; ok {
		return ent.err
	}
	return nil
}

// Complete marks h done with an optional failure.
func (e *ManualExecutor) Complete(h Handle, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.launched[h]
	if !ok {
		return fmt.Errorf("manual executor %s: unknown handle %s", e.unitType, h)
	}
	ent.done = true
	ent.err = err
	return nil
}

// CompleteAll marks every in-flight package done and returns how many it
// completed.
func (e *ManualExecutor) CompleteAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.order {
		if ent := e.launched[h]; !ent.done {
			ent.done = true
			n++
		}
	}
	return n
}

// Pending returns the handles not yet completed, in launch order.
func (e *ManualExecutor) Pending() []Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Handle
	for _, h := range e.order {
		if !e.launched[h].done {
			out = append(out, h)
		}
	}
	return out
}

// Package returns the package launched under h.
func (e *ManualExecutor) Package(h Handle) (*model.Package, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.launched[h]
	if !ok {
		return nil, false
	}
	return ent.pkg, true
}

// Launched returns every package launched so far, in launch order,
// including packages already forgotten.
func (e *ManualExecutor) Launched() []*model.Package {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Package, len(e.history))
	copy(out, e.history)
	return out
}

// Forget drops a reaped package.
func (e *ManualExecutor) Forget(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.launched, h)
	for i, o := range e.order {
		if o == h {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}
