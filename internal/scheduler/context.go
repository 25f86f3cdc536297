package scheduler

import (
	"fmt"

	"github.com/me/govm/pkg/model"
)

// InstructionContext is one instruction message expanded against one
// execution unit. It is ready once every access request it owns has been
// granted.
type InstructionContext struct {
	id      uint64
	msg     *model.InstructionMessage
	unit    *ExecutionUnit
	state   model.ContextState
	waiting accessList
	holding accessList
}

func newInstructionContext(id uint64, msg *model.InstructionMessage, unit *ExecutionUnit) *InstructionContext {
	return &InstructionContext{
		id:      id,
		msg:     msg,
		unit:    unit,
		state:   model.ContextStatePending,
		waiting: newAccessList(),
		holding: newAccessList(),
	}
}

// Message returns the instruction message this context was expanded from.
func (c *InstructionContext) Message() *model.InstructionMessage {
	return c.msg
}

// Unit returns the target execution unit.
func (c *InstructionContext) Unit() *ExecutionUnit {
	return c.unit
}

// State returns the admission state.
func (c *InstructionContext) State() model.ContextState {
	return c.state
}

func (c *InstructionContext) transition(next model.ContextState) error {
	if !c.state.CanTransitionTo(next) {
		return &model.InvalidTransitionError{
			Entity: "context",
			ID:     fmt.Sprintf("%s@%s", c.msg.ID, c.unit.id),
			From:   c.state.String(),
			To:     next.String(),
		}
	}
	c.state = next
	return nil
}

// operandAccess is one object an instruction touches, with the merged
// access kind of every operand that names it.
type operandAccess struct {
	object model.LogicalObjectID
	kind   model.AccessKind
}

// operandAccesses lists the distinct objects of msg in first-mention order.
// An object named both const and mutable is accessed exclusively, so an
// instruction never waits on itself.
func operandAccesses(msg *model.InstructionMessage) []operandAccess {
	var out []operandAccess
	index := make(map[model.LogicalObjectID]int)
	for _, op := range msg.Operands {
		if !op.HasObject() {
			continue
		}
		kind := op.Kind.Access()
		if i, ok := index[op.Object]; ok {
			if kind > out[i].kind {
				out[i].kind = kind
			}
			continue
		}
		index[op.Object] = len(out)
		out = append(out, operandAccess{object: op.Object, kind: kind})
	}
	return out
}
