package model

import "time"

// ReplicaSnapshot is the access state of one mirrored object.
type ReplicaSnapshot struct {
	Parallel ParallelID `json:"parallel_id"`
	Mode     AccessKind `json:"mode"`
	Holding  int        `json:"holding"`
	Waiting  int        `json:"waiting"`
}

// ObjectSnapshot is the access state of one logical object.
type ObjectSnapshot struct {
	ID       LogicalObjectID   `json:"id"`
	Replicas []ReplicaSnapshot `json:"replicas"`
}

// UnitSnapshot is the queue state of one execution unit.
type UnitSnapshot struct {
	Unit        UnitID `json:"unit"`
	Uncollected int    `json:"uncollected"`
	Launched    int    `json:"launched"`
}

// Counters are cumulative scheduler totals.
type Counters struct {
	Received         uint64 `json:"received"`
	ControlExecuted  uint64 `json:"control_executed"`
	ContextsCreated  uint64 `json:"contexts_created"`
	ContextsReleased uint64 `json:"contexts_released"`
	PackagesLaunched uint64 `json:"packages_launched"`
	PackagesReleased uint64 `json:"packages_released"`
	PackagesFailed   uint64 `json:"packages_failed"`
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Tick            uint64           `json:"tick"`
	Inbound         int              `json:"inbound"`
	WaitingContexts int              `json:"waiting_contexts"`
	InFlight        int              `json:"in_flight"`
	Backpressure    bool             `json:"backpressure"`
	Objects         []ObjectSnapshot `json:"objects"`
	Units           []UnitSnapshot   `json:"units"`
	Counters        Counters         `json:"counters"`
}

// Object returns the snapshot of one logical object, if present.
func (s *Snapshot) Object(id LogicalObjectID) (ObjectSnapshot, bool) {
	for _, o := range s.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return ObjectSnapshot{}, false
}

// PackageRecord is the journal entry of one launched package.
type PackageRecord struct {
	ID             string     `json:"id"`
	Unit           UnitID     `json:"unit"`
	Size           int        `json:"size"`
	InstructionIDs []string   `json:"instruction_ids"`
	Opcodes        []string   `json:"opcodes"`
	LaunchedTick   uint64     `json:"launched_tick"`
	LaunchedAt     time.Time  `json:"launched_at"`
	ReleasedTick   *uint64    `json:"released_tick,omitempty"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`
	Failure        string     `json:"failure,omitempty"`
}

// IsReleased reports whether the package has been reaped.
func (r *PackageRecord) IsReleased() bool {
	return r.ReleasedTick != nil
}

// IdleEvent records an object replica whose holding and waiting lists
// emptied on release.
type IdleEvent struct {
	Object   LogicalObjectID `json:"object"`
	Parallel ParallelID      `json:"parallel_id"`
	Tick     uint64          `json:"tick"`
	At       time.Time       `json:"at"`
}
