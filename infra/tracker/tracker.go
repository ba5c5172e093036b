package tracker

import (
	"fmt"
	"sync/atomic"

	"smr/infra/memory"
)

// Storage is the allocator a backend reclaims into. *memory.Arena
// satisfies it.
type Storage interface {
	Allocate() memory.Ref
	Header(ref memory.Ref) *memory.Header
	Free(ref memory.Ref)
}

// Backend is the contract every reclamation scheme satisfies. Slot
// indices are physical; Tracker maps logical roles onto them.
type Backend interface {
	// StartOp and EndOp bracket one logical data structure operation.
	StartOp(tid int)
	EndOp(tid int)

	// Alloc returns a Live record whose header birth epoch is the
	// current global epoch.
	Alloc(tid int) memory.Ref

	// Read loads *src and returns it once the load is protected by slot.
	// owner is the record holding src, or 0 for a root.
	Read(src *atomic.Uint64, slot, tid int, owner memory.Ref) uint64

	// ReserveSlot protects an already loaded word in slot.
	ReserveSlot(word uint64, slot, tid int, owner memory.Ref)

	// Retire hands a record that is no longer reachable to reclamation.
	Retire(ref memory.Ref, tid int)

	// Reclaim frees ref immediately. Only legal for records no other
	// thread can have observed.
	Reclaim(ref memory.Ref, tid int)

	// ClearAll drops every reservation of tid and drains its cached
	// free lists.
	ClearAll(tid int)

	// RetiredCount reports records retired by tid and not yet freed.
	RetiredCount(tid int) int64
}

// Tracker is the facade data structures use. It owns the slot renaming
// that lets a traversal rotate a few logical roles (predecessor, current,
// successor) over a fixed set of physical slots.
type Tracker struct {
	name     string
	backend  Backend
	renamers [][]int
}

func newTracker(name string, b Backend, cfg Config) *Tracker {
	t := &Tracker{
		name:     name,
		backend:  b,
		renamers: make([][]int, cfg.Workers),
	}
	for tid := range t.renamers {
		r := make([]int, cfg.Slots)
		for i := range r {
			r[i] = i
		}
		t.renamers[tid] = r
	}
	return t
}

// Name is the backend this tracker was built with.
func (t *Tracker) Name() string { return t.name }

// Backend exposes the underlying scheme, mainly for tests.

func (t *Tracker) StartOp(tid int) { t.backend.StartOp(tid) }

func (t *Tracker) EndOp(tid int) { t.backend.EndOp(tid) }

func (t *Tracker) Alloc(tid int) memory.Ref { return t.backend.Alloc(tid) }

// Read performs a protected load into logical slot idx.
func (t *Tracker) Read(src *atomic.Uint64, idx, tid int, owner memory.Ref) uint64 {
	return t.backend.Read(src, t.renamers[tid][idx], tid, owner)
}

// ReserveSlot protects word in logical slot idx. Like Read, idx is a role
// resolved through the renamer, not a physical slot index.
func (t *Tracker) ReserveSlot(word uint64, idx, tid int, owner memory.Ref) {
	t.backend.ReserveSlot(word, t.renamers[tid][idx], tid, owner)
}

// Transfer swaps the physical slots behind logical roles src and dst, so
// the reservation made under src is afterwards held by dst.
func (t *Tracker) Transfer(src, dst, tid int) {
	r := t.renamers[tid]
	r[src], r[dst] = r[dst], r[src]
}

func (t *Tracker) Retire(ref memory.Ref, tid int) { t.backend.Retire(ref, tid) }

func (t *Tracker) Reclaim(ref memory.Ref, tid int) {
	if ref != 0 {
		t.backend.Reclaim(ref, tid)
	}
}

func (t *Tracker) ClearAll(tid int) { t.backend.ClearAll(tid) }

func (t *Tracker) RetiredCount(tid int) int64 { return t.backend.RetiredCount(tid) }

// TotalRetired sums RetiredCount over every thread.
func (t *Tracker) TotalRetired() int64 {
	var n int64
	for tid := range t.renamers {
		n += t.backend.RetiredCount(tid)
	}
	return n
}

func mustRetire(h *memory.Header, ref memory.Ref) {
	if !h.MarkRetired() {
		panic(fmt.Sprintf("tracker: retire of %s record %d", h.State(), ref))
	}
}
