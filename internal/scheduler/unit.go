package scheduler

import (
	"github.com/me/govm/internal/executor"
	"github.com/me/govm/pkg/model"
)

// ExecutionUnit is one independent execution stream. It collects contexts
// that became ready and keeps its launched packages in submission order.
type ExecutionUnit struct {
	id       model.UnitID
	exec     executor.Executor
	collect  []*InstructionContext
	launched []*InstructionPackage
	active   bool // has collected contexts this tick
}

// ID returns the unit id.
func (u *ExecutionUnit) ID() model.UnitID {
	return u.id
}

func (u *ExecutionUnit) snapshot() model.UnitSnapshot {
	return model.UnitSnapshot{
		Unit:        u.id,
		Uncollected: len(u.collect),
		Launched:    len(u.launched),
	}
}

// InstructionPackage is a batch of contexts launched together on one unit.
// Its accesses are released together once the executor reports it done.
type InstructionPackage struct {
	id       string
	unit     *ExecutionUnit
	contexts []*InstructionContext
	handle   executor.Handle
	tick     uint64
	state    model.PackageState
}

// ID returns the package id.
func (p *InstructionPackage) ID() string {
	return p.id
}

// view builds the executor-facing description of the package.
func (p *InstructionPackage) view() *model.Package {
	pkg := &model.Package{
		ID:           p.id,
		Unit:         p.unit.id,
		Tick:         p.tick,
		Instructions: make([]*model.InstructionMessage, len(p.contexts)),
	}
	for i, c := range p.contexts {
		pkg.Instructions[i] = c.msg
	}
	return pkg
}

func (p *InstructionPackage) record() *model.PackageRecord {
	rec := &model.PackageRecord{
		ID:             p.id,
		Unit:           p.unit.id,
		Size:           len(p.contexts),
		InstructionIDs: make([]string, len(p.contexts)),
		Opcodes:        make([]string, len(p.contexts)),
		LaunchedTick:   p.tick,
	}
	for i, c := range p.contexts {
		rec.InstructionIDs[i] = c.msg.ID
		rec.Opcodes[i] = c.msg.Opcode
	}
	return rec
}
