package model

import "fmt"

// Operand is one argument of an instruction message.
type Operand struct {
	Kind   OperandKind     `json:"kind" yaml:"kind"`
	Object LogicalObjectID `json:"object,omitempty" yaml:"object,omitempty"`
	Value  int64           `json:"value,omitempty" yaml:"value,omitempty"`
}

// ConstOperand returns a shared-access operand on id.
func ConstOperand(id LogicalObjectID) Operand {
	return Operand{Kind: OperandConst, Object: id}
}

// MutableOperand returns an exclusive-access operand on id.
func MutableOperand(id LogicalObjectID) Operand {
	return Operand{Kind: OperandMutable, Object: id}
}

// ValueOperand returns an operand with no object dependency.
func ValueOperand(v int64) Operand {
	return Operand{Kind: OperandValue, Value: v}
}

// HasObject reports whether the operand references a logical object.
func (o Operand) HasObject() bool {
	return o.Kind == OperandConst || o.Kind == OperandMutable
}

// ControlOp names a directory-management instruction.
type ControlOp string

const (
	ControlCreateObject ControlOp = "create_object"
	ControlDeleteObject ControlOp = "delete_object"
)

// ControlPayload is the argument block of a control instruction.
type ControlPayload struct {
	Op       ControlOp       `json:"op" yaml:"op"`
	Object   LogicalObjectID `json:"object" yaml:"object"`
	Replicas int             `json:"replicas,omitempty" yaml:"replicas,omitempty"`
}

// InstructionMessage is one raw instruction as produced by the upstream
// encoder. Messages are immutable once received by the scheduler.
type InstructionMessage struct {
	ID       string          `json:"id,omitempty" yaml:"id,omitempty"`
	UnitType UnitType        `json:"unit" yaml:"unit"`
	Opcode   string          `json:"opcode,omitempty" yaml:"opcode,omitempty"`
	Operands []Operand       `json:"operands,omitempty" yaml:"operands,omitempty"`
	Control  *ControlPayload `json:"control,omitempty" yaml:"control,omitempty"`
}

// IsControl reports whether the message targets the control unit type.
func (m *InstructionMessage) IsControl() bool {
	return m.UnitType == ControlUnitType
}

// Validate checks the shape of a message. It does not consult the state
// directory: unknown objects are caught by the scheduler.
func (m *InstructionMessage) Validate() []FieldError {
	var errs []FieldError
	if m.UnitType == "" {
		errs = append(errs, FieldError{Field: "unit", Message: "unit is required"})
	}
	if m.IsControl() {
		if len(m.Operands) > 0 {
			errs = append(errs, FieldError{Field: "operands", Message: "control instructions take no operands"})
		}
		switch {
		case m.Control == nil:
			errs = append(errs, FieldError{Field: "control", Message: "control payload is required for control instructions"})
		case m.Control.Op == ControlCreateObject && m.Control.Replicas <= 0:
			errs = append(errs, FieldError{Field: "control.replicas", Message: "replicas must be positive"})
		case m.Control.Op != ControlCreateObject && m.Control.Op != ControlDeleteObject:
			errs = append(errs, FieldError{Field: "control.op", Message: fmt.Sprintf("unknown control op %q", m.Control.Op)})
		}
		return errs
	}
	if m.Control != nil {
		errs = append(errs, FieldError{Field: "control", Message: "control payload is only valid on the control unit"})
	}
	for i, op := range m.Operands {
		switch op.Kind {
		case OperandConst, OperandMutable, OperandValue:
		default:
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("operands[%d].kind", i),
				Message: fmt.Sprintf("unknown operand kind %q", op.Kind),
			})
		}
	}
	return errs
}

// Package is the read-only view of an instruction package handed to an
// executor. Instructions are in admission order.
type Package struct {
	ID           string                `json:"id"`
	Unit         UnitID                `json:"unit"`
	Tick         uint64                `json:"tick"`
	Instructions []*InstructionMessage `json:"instructions"`
}
