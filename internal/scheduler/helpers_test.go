package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/me/govm/internal/executor"
	"github.com/me/govm/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires a Scheduler to one ManualExecutor per unit type.
type harness struct {
	t     *testing.T
	sched *Scheduler
	execs map[model.UnitType]*executor.ManualExecutor
	seen  map[model.UnitType]int
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	logger := testLogger()
	reg := executor.NewRegistry(logger)
	h := &harness{
		t:     t,
		execs: make(map[model.UnitType]*executor.ManualExecutor),
		seen:  make(map[model.UnitType]int),
	}
	for _, spec := range cfg.Units {
		m := executor.NewManualExecutor(spec.Type)
		reg.Register(m)
		h.execs[spec.Type] = m
	}
	sched, err := New(cfg, reg, logger, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.sched = sched
	return h
}

// singleUnit returns a harness with one "gpu" unit.
func singleUnit(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarness(t, Config{Units: []model.UnitSpec{{Type: "gpu", Count: 1}}}, opts...)
}

func createObject(id model.LogicalObjectID, replicas int) *model.InstructionMessage {
	return &model.InstructionMessage{
		UnitType: model.ControlUnitType,
		Control:  &model.ControlPayload{Op: model.ControlCreateObject, Object: id, Replicas: replicas},
	}
}

func deleteObject(id model.LogicalObjectID) *model.InstructionMessage {
	return &model.InstructionMessage{
		UnitType: model.ControlUnitType,
		Control:  &model.ControlPayload{Op: model.ControlDeleteObject, Object: id},
	}
}

func instr(id string, unit model.UnitType, ops ...model.Operand) *model.InstructionMessage {
	return &model.InstructionMessage{ID: id, UnitType: unit, Opcode: "noop", Operands: ops}
}

func (h *harness) receive(msgs ...*model.InstructionMessage) {
	h.sched.Receive(msgs)
}

func (h *harness) tick() {
	h.t.Helper()
	if err := h.sched.Tick(context.Background()); err != nil {
		h.t.Fatalf("Tick: %v", err)
	}
}

// setup creates the given objects in a tick of their own.
func (h *harness) setup(objects ...model.LogicalObjectID) {
	h.t.Helper()
	for _, id := range objects {
		h.receive(createObject(id, 1))
	}
	h.tick()
}

// launched returns the packages launched on unitType since the last call,
// each as its instruction ids.
func (h *harness) launched(unitType model.UnitType) [][]string {
	h.t.Helper()
	all := h.execs[unitType].Launched()
	fresh := all[h.seen[unitType]:]
	h.seen[unitType] = len(all)
	out := make([][]string, 0, len(fresh))
	for _, pkg := range fresh {
		ids := make([]string, len(pkg.Instructions))
		for i, ins := range pkg.Instructions {
			ids[i] = ins.ID
		}
		out = append(out, ids)
	}
	return out
}

// completeAll marks every in-flight package of every unit type done.
func (h *harness) completeAll() {
	for _, m := range h.execs {
		m.CompleteAll()
	}
}

// checkInvariants verifies the access-mode invariant on every replica.
func (h *harness) checkInvariants() {
	h.t.Helper()
	h.sched.dir.Ascend(func(lo *LogicalObject) bool {
		for _, mo := range lo.replicas {
			holders := mo.holding.items()
			switch mo.mode {
			case model.AccessNone:
				if len(holders) != 0 {
					h.t.Errorf("object %d/%d: mode none with %d holders", lo.id, mo.parallel, len(holders))
				}
			case model.AccessExclusive:
				if len(holders) != 1 {
					h.t.Errorf("object %d/%d: mode exclusive with %d holders", lo.id, mo.parallel, len(holders))
				}
			case model.AccessShared:
				for _, r := range holders {
					if r.kind != model.AccessShared {
						h.t.Errorf("object %d/%d: mode shared with an exclusive holder", lo.id, mo.parallel)
					}
				}
			}
			for _, r := range holders {
				if r.kind == model.AccessExclusive && len(holders) > 1 {
					h.t.Errorf("object %d/%d: exclusive holder alongside %d others", lo.id, mo.parallel, len(holders)-1)
				}
			}
		}
		return true
	})
}
