package scheduler

import (
	"github.com/google/btree"
	"github.com/me/govm/pkg/model"
)

// LogicalObject is one distributed state entity. It owns one MirroredObject
// per replica, indexed by parallel id.
type LogicalObject struct {
	id       model.LogicalObjectID
	replicas []*MirroredObject
}

// ID returns the logical object id.
func (lo *LogicalObject) ID() model.LogicalObjectID {
	return lo.id
}

// Replicas returns the replica count.
func (lo *LogicalObject) Replicas() int {
	return len(lo.replicas)
}

// Replica returns the mirrored object for parallel id p.
func (lo *LogicalObject) Replica(p model.ParallelID) (*MirroredObject, bool) {
	if p < 0 || int(p) >= len(lo.replicas) {
		return nil, false
	}
	return lo.replicas[p], true
}

// busy reports whether any replica holds or awaits an access.
func (lo *LogicalObject) busy() bool {
	for _, mo := range lo.replicas {
		if !mo.holding.empty() || !mo.waiting.empty() {
			return true
		}
	}
	return false
}

func (lo *LogicalObject) snapshot() model.ObjectSnapshot {
	snap := model.ObjectSnapshot{ID: lo.id, Replicas: make([]model.ReplicaSnapshot, len(lo.replicas))}
	for i, mo := range lo.replicas {
		snap.Replicas[i] = model.ReplicaSnapshot{
			Parallel: mo.parallel,
			Mode:     mo.mode,
			Holding:  mo.holding.len(),
			Waiting:  mo.waiting.len(),
		}
	}
	return snap
}

// Directory maps logical object ids to logical objects, ordered by id.
// Objects enter and leave only through control instructions.
type Directory struct {
	objects *btree.BTreeG[*LogicalObject]
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		objects: btree.NewG[*LogicalObject](16, func(a, b *LogicalObject) bool {
			return a.id < b.id
		}),
	}
}

// Len returns the number of logical objects.
func (d *Directory) Len() int {
	return d.objects.Len()
}

// Get returns the logical object for id.
func (d *Directory) Get(id model.LogicalObjectID) (*LogicalObject, bool) {
	return d.objects.Get(&LogicalObject{id: id})
}

// Create registers a logical object with the given replica count.
func (d *Directory) Create(id model.LogicalObjectID, replicas int) (*LogicalObject, error) {
	if replicas <= 0 {
		return nil, model.NewViolation(model.ViolationMalformedControl, "logical object %d: replica count %d", id, replicas)
	}
	if _, ok := d.Get(id); ok {
		return nil, model.NewViolation(model.ViolationDuplicateObject, "logical object %d already exists", id)
	}
	lo := &LogicalObject{id: id, replicas: make([]*MirroredObject, replicas)}
	for i := range lo.replicas {
		lo.replicas[i] = newMirroredObject(lo, model.ParallelID(i))
	}
	d.objects.ReplaceOrInsert(lo)
	return lo, nil
}

// Delete removes a logical object. An object with live accesses on any
// replica cannot be deleted.
func (d *Directory) Delete(id model.LogicalObjectID) error {
	lo, ok := d.Get(id)
	if !ok {
		return model.NewViolation(model.ViolationUnknownObject, "logical object %d", id)
	}
	if lo.busy() {
		return model.NewViolation(model.ViolationObjectInUse, "logical object %d has live accesses", id)
	}
	d.objects.Delete(lo)
	return nil
}

// Resolve returns the mirrored object of id at replica p.
func (d *Directory) Resolve(id model.LogicalObjectID, p model.ParallelID) (*MirroredObject, error) {
	lo, ok := d.Get(id)
	if !ok {
		return nil, model.NewViolation(model.ViolationUnknownObject, "logical object %d", id)
	}
	mo, ok := lo.Replica(p)
	if !ok {
		return nil, model.NewViolation(model.ViolationReplicaOutOfRange, "replica %d of logical object %d (replicas: %d)", p, id, len(lo.replicas))
	}
	return mo, nil
}

// Ascend calls fn for each logical object in id order until fn returns false.
func (d *Directory) Ascend(fn func(lo *LogicalObject) bool) {
	d.objects.Ascend(fn)
}
