package model

import "fmt"

// AccessKind is the access mode of a mirrored object or the intent of one
// access request.
type AccessKind uint8

const (
	AccessNone AccessKind = iota
	AccessShared
	AccessExclusive
)

func (k AccessKind) String() string {
	switch k {
	case AccessShared:
		return "shared"
	case AccessExclusive:
		return "exclusive"
	default:
		return "none"
	}
}

// MarshalText lets snapshots carry the mode by name.
func (k AccessKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a mode name.
func (k *AccessKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*k = AccessNone
	case "shared":
		*k = AccessShared
	case "exclusive":
		*k = AccessExclusive
	default:
		return fmt.Errorf("unknown access kind %q", b)
	}
	return nil
}

// OperandKind tags one operand of an instruction message.
type OperandKind string

const (
	// OperandConst reads a logical object (shared access).
	OperandConst OperandKind = "const"
	// OperandMutable writes a logical object (exclusive access).
	OperandMutable OperandKind = "mutable"
	// OperandValue carries an immediate value and has no object dependency.
	OperandValue OperandKind = "value"
)

// Access returns the access kind an operand of this kind requests.
// Value operands request nothing.
func (k OperandKind) Access() AccessKind {
	switch k {
	case OperandConst:
		return AccessShared
	case OperandMutable:
		return AccessExclusive
	}
	return AccessNone
}
