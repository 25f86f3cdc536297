package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "object '7' not found"}
	want := "NOT_FOUND: object '7' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("package", "pkg_abc")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "package 'pkg_abc' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "package 'pkg_abc' not found")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid request",
		FieldError{Field: "messages[0].unit", Message: "unit is required"},
		FieldError{Field: "messages[1].operands[0].kind", Message: "unknown operand kind"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{
		Entity: "context",
		ID:     "ctx_3",
		From:   "DONE",
		To:     "PENDING",
	}
	want := "invalid context state transition: DONE → PENDING (entity ctx_3)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestContractViolation_Is(t *testing.T) {
	err := fmt.Errorf("phase 2 (admit): %w", NewViolation(ViolationUnknownObject, "logical object %d", 42))

	if !errors.Is(err, ErrUnknownObject) {
		t.Errorf("errors.Is(%v, ErrUnknownObject) = false, want true", err)
	}
	if errors.Is(err, ErrDoubleRelease) {
		t.Errorf("errors.Is(%v, ErrDoubleRelease) = true, want false", err)
	}

	var cv *ContractViolation
	if !errors.As(err, &cv) {
		t.Fatalf("errors.As failed for %v", err)
	}
	if cv.Message != "logical object 42" {
		t.Errorf("Message = %q, want %q", cv.Message, "logical object 42")
	}
}

func TestContractViolation_Error(t *testing.T) {
	tests := []struct {
		err  *ContractViolation
		want string
	}{
		{ErrPackageReaped, "contract violation: PACKAGE_REAPED"},
		{NewViolation(ViolationReplicaOutOfRange, "replica %d of object %d", 3, 1), "contract violation: REPLICA_OUT_OF_RANGE: replica 3 of object 1"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
