package tracker

import (
	"sync/atomic"

	"smr/infra/atomicx"
	"smr/infra/memory"
)

// nilTracker never reclaims. It is the leak baseline: retired records
// stay Retired and are only counted.
type nilTracker struct {
	storage Storage
	clock   *memory.Clock
	retired []atomicx.PaddedInt64
}

func newNil(s Storage, cfg Config) *nilTracker {
	return &nilTracker{
		storage: s,
		clock:   memory.NewClock(),
		retired: make([]atomicx.PaddedInt64, cfg.Workers),
	}
}

func (n *nilTracker) StartOp(int) {}
func (n *nilTracker) EndOp(int)   {}

func (n *nilTracker) Alloc(int) memory.Ref {
	ref := n.storage.Allocate()
	n.storage.Header(ref).SetBirth(n.clock.Load())
	return ref
}

func (n *nilTracker) Read(src *atomic.Uint64, _, _ int, _ memory.Ref) uint64 {
	return src.Load()
}

func (n *nilTracker) ReserveSlot(uint64, int, int, memory.Ref) {}

func (n *nilTracker) Retire(ref memory.Ref, tid int) {
	if ref == 0 {
		return
	}
	mustRetire(n.storage.Header(ref), ref)
	n.retired[tid].Add(1)
}

func (n *nilTracker) Reclaim(ref memory.Ref, _ int) { n.storage.Free(ref) }

func (n *nilTracker) ClearAll(int) {}

func (n *nilTracker) RetiredCount(tid int) int64 { return n.retired[tid].Load() }
