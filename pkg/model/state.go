package model

// ContextState represents the admission state of an InstructionContext.
type ContextState string

const (
	ContextStatePending   ContextState = "PENDING"
	ContextStateReady     ContextState = "READY"
	ContextStateCollected ContextState = "COLLECTED"
	ContextStateLaunched  ContextState = "LAUNCHED"
	ContextStateDone      ContextState = "DONE"
)

// String returns the string representation of the context state.
func (s ContextState) String() string {
	return string(s)
}

// ValidContextTransitions defines the allowed state transitions for
// instruction contexts. The lifecycle is strictly linear.
var ValidContextTransitions = map[ContextState][]ContextState{
	ContextStatePending:   {ContextStateReady},
	ContextStateReady:     {ContextStateCollected},
	ContextStateCollected: {ContextStateLaunched},
	ContextStateLaunched:  {ContextStateDone},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ContextState) CanTransitionTo(next ContextState) bool {
	for _, allowed := range ValidContextTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PackageState represents the lifecycle of an InstructionPackage.
type PackageState string

const (
	PackageStateLaunched PackageState = "LAUNCHED"
	PackageStateReleased PackageState = "RELEASED"
)

// String returns the string representation of the package state.
func (s PackageState) String() string {
	return string(s)
}
