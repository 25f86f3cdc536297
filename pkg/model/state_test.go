package model

import "testing"

func TestContextState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  ContextState
		to    ContextState
		valid bool
	}{
		// Valid transitions
		{ContextStatePending, ContextStateReady, true},
		{ContextStateReady, ContextStateCollected, true},
		{ContextStateCollected, ContextStateLaunched, true},
		{ContextStateLaunched, ContextStateDone, true},

		// Invalid transitions
		{ContextStatePending, ContextStateCollected, false},
		{ContextStatePending, ContextStateLaunched, false},
		{ContextStateReady, ContextStatePending, false},
		{ContextStateLaunched, ContextStateReady, false},
		{ContextStateDone, ContextStateDone, false},
		{ContextStateDone, ContextStatePending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestAccessKind_String(t *testing.T) {
	tests := []struct {
		kind AccessKind
		want string
	}{
		{AccessNone, "none"},
		{AccessShared, "shared"},
		{AccessExclusive, "exclusive"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("AccessKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestOperandKind_Access(t *testing.T) {
	tests := []struct {
		kind OperandKind
		want AccessKind
	}{
		{OperandConst, AccessShared},
		{OperandMutable, AccessExclusive},
		{OperandValue, AccessNone},
		{OperandKind("bogus"), AccessNone},
	}
	for _, tt := range tests {
		if got := tt.kind.Access(); got != tt.want {
			t.Errorf("OperandKind(%q).Access() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestAccessKind_UnmarshalText(t *testing.T) {
	for _, k := range []AccessKind{AccessNone, AccessShared, AccessExclusive} {
		var got AccessKind
		if err := got.UnmarshalText([]byte(k.String())); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", k, err)
		}
		if got != k {
			t.Errorf("UnmarshalText(%q) = %v", k, got)
		}
	}
	var k AccessKind
	if err := k.UnmarshalText([]byte("rw")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
