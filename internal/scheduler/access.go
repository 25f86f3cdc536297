package scheduler

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/me/govm/pkg/model"
)

// AccessRequest is one instruction context's intent to access one mirrored
// object. It is a member of two ordered lists at once: the object's
// waiting or holding list, and the context's waiting or holding list.
type AccessRequest struct {
	id     uint64
	kind   model.AccessKind
	ctx    *InstructionContext
	object *MirroredObject
}

// Kind returns the requested access.
func (r *AccessRequest) Kind() model.AccessKind {
	return r.kind
}

// Object returns the mirrored object the request targets.
func (r *AccessRequest) Object() *MirroredObject {
	return r.object
}

// accessList is an insertion-ordered set of requests keyed by request id.
type accessList struct {
	m *linkedhashmap.Map
}

func newAccessList() accessList {
	return accessList{m: linkedhashmap.New()}
}

func (l accessList) pushBack(r *AccessRequest) {
	l.m.Put(r.id, r)
}

// remove deletes r and reports whether it was present.
func (l accessList) remove(r *AccessRequest) bool {
	if _, ok := l.m.Get(r.id); !ok {
		return false
	}
	l.m.Remove(r.id)
	return true
}

func (l accessList) front() *AccessRequest {
	it := l.m.Iterator()
	if !it.First() {
		return nil
	}
	return it.Value().(*AccessRequest)
}

func (l accessList) len() int {
	return l.m.Size()
}

func (l accessList) empty() bool {
	return l.m.Empty()
}

// items returns the requests in order. The slice is a copy, so callers may
// remove requests while ranging over it.
func (l accessList) items() []*AccessRequest {
	vals := l.m.Values()
	out := make([]*AccessRequest, len(vals))
	for i, v := range vals {
		out[i] = v.(*AccessRequest)
	}
	return out
}

// MirroredObject is one replica of a logical object and the unit of access
// arbitration. Mode is none with an empty holding list, exclusive with
// exactly one holder, or shared with only shared holders.
type MirroredObject struct {
	logical  *LogicalObject
	parallel model.ParallelID
	mode     model.AccessKind
	holding  accessList
	waiting  accessList

	candidate bool // queued for resolution this tick
}

func newMirroredObject(lo *LogicalObject, p model.ParallelID) *MirroredObject {
	return &MirroredObject{
		logical:  lo,
		parallel: p,
		holding:  newAccessList(),
		waiting:  newAccessList(),
	}
}

// Logical returns the owning logical object.
func (mo *MirroredObject) Logical() *LogicalObject {
	return mo.logical
}

// Parallel returns the replica index.
func (mo *MirroredObject) Parallel() model.ParallelID {
	return mo.parallel
}

// Mode returns the current access mode.
func (mo *MirroredObject) Mode() model.AccessKind {
	return mo.mode
}

// Holding returns the number of granted requests.
func (mo *MirroredObject) Holding() int {
	return mo.holding.len()
}

// Waiting returns the number of queued requests.
func (mo *MirroredObject) Waiting() int {
	return mo.waiting.len()
}

// resetModeIfFree clears the mode when nothing holds the object.
func (mo *MirroredObject) resetModeIfFree() {
	if mo.holding.empty() {
		mo.mode = model.AccessNone
	}
}

// firstAllowed returns the head of the waiting queue if it is compatible
// with the current mode. Grants are strictly FIFO: an exclusive request at
// the head blocks every request behind it.
func (mo *MirroredObject) firstAllowed() *AccessRequest {
	head := mo.waiting.front()
	if head == nil {
		return nil
	}
	switch mo.mode {
	case model.AccessNone:
		return head
	case model.AccessShared:
		if head.kind == model.AccessShared {
			return head
		}
	}
	return nil
}

// grant moves r from waiting to holding and updates the mode.
func (mo *MirroredObject) grant(r *AccessRequest) {
	mo.waiting.remove(r)
	mo.holding.pushBack(r)
	if mo.mode == model.AccessNone {
		mo.mode = r.kind
	}
}
