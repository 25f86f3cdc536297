package model

import "fmt"

// LogicalObjectID identifies one distributed state entity.
type LogicalObjectID uint64

// ParallelID is the replica index of a logical object. Each execution unit
// carries one and resolves operands against the replica with the same index.
type ParallelID int64

// UnitType selects the family of execution units an instruction targets.
type UnitType string

// ControlUnitType is reserved for directory-management instructions, which
// run inline during a tick and never reach an execution unit.
const ControlUnitType UnitType = "control"

// String returns the string representation of the unit type.
func (t UnitType) String() string {
	return string(t)
}

// UnitID identifies one execution unit: a unit type plus its parallel id.
type UnitID struct {
	Type     UnitType   `json:"type" yaml:"type"`
	Parallel ParallelID `json:"parallel_id" yaml:"parallel_id"`
}

func (u UnitID) String() string {
	return fmt.Sprintf("%s:%d", u.Type, u.Parallel)
}

// UnitSpec declares Count execution units of one type, with parallel ids
// 0..Count-1.
type UnitSpec struct {
	Type  UnitType `json:"type" yaml:"type"`
	Count int      `json:"count" yaml:"count"`
}
