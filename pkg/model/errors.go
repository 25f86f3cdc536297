package model

import "fmt"

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrBackpressure ErrorCode = "BACKPRESSURE"
	ErrUnavailable  ErrorCode = "UNAVAILABLE"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the govm API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// ViolationCode classifies a contract violation.
type ViolationCode string

const (
	ViolationUnknownObject     ViolationCode = "UNKNOWN_OBJECT"
	ViolationReplicaOutOfRange ViolationCode = "REPLICA_OUT_OF_RANGE"
	ViolationUnknownUnitType   ViolationCode = "UNKNOWN_UNIT_TYPE"
	ViolationDuplicateObject   ViolationCode = "DUPLICATE_OBJECT"
	ViolationObjectInUse       ViolationCode = "OBJECT_IN_USE"
	ViolationMalformedControl  ViolationCode = "MALFORMED_CONTROL"
	ViolationDoubleRelease     ViolationCode = "DOUBLE_RELEASE"
	ViolationPackageReaped     ViolationCode = "PACKAGE_REAPED"
	ViolationLaunchRejected    ViolationCode = "LAUNCH_REJECTED"
)

// ContractViolation reports a programming-contract failure: a bug in the
// instruction producer or the executor. It is fatal to the scheduling pass.
type ContractViolation struct {
	Code    ViolationCode
	Message string
}

func (e *ContractViolation) Error() string {
	if e.Message == "" {
		return "contract violation: " + string(e.Code)
	}
	return fmt.Sprintf("contract violation: %s: %s", e.Code, e.Message)
}

// Is matches another ContractViolation with the same code, so the sentinel
// values below work with errors.Is.
func (e *ContractViolation) Is(target error) bool {
	t, ok := target.(*ContractViolation)
	return ok && t.Code == e.Code
}

// NewViolation formats a ContractViolation.
func NewViolation(code ViolationCode, format string, args ...any) *ContractViolation {
	return &ContractViolation{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrUnknownObject     = &ContractViolation{Code: ViolationUnknownObject}
	ErrReplicaOutOfRange = &ContractViolation{Code: ViolationReplicaOutOfRange}
	ErrUnknownUnitType   = &ContractViolation{Code: ViolationUnknownUnitType}
	ErrDuplicateObject   = &ContractViolation{Code: ViolationDuplicateObject}
	ErrObjectInUse       = &ContractViolation{Code: ViolationObjectInUse}
	ErrMalformedControl  = &ContractViolation{Code: ViolationMalformedControl}
	ErrDoubleRelease     = &ContractViolation{Code: ViolationDoubleRelease}
	ErrPackageReaped     = &ContractViolation{Code: ViolationPackageReaped}
	ErrLaunchRejected    = &ContractViolation{Code: ViolationLaunchRejected}
)
