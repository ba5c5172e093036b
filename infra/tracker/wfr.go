package tracker

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"smr/infra/atomicx"
	"smr/infra/memory"
)

// freeCacheSize is how many reclaimable batches a thread accumulates
// before destroying them in one pass.
const freeCacheSize = 12

// pending marks an open help request in a slot's result word.
const pending = ^uint64(0)

// invalid heads the chain of a slot that holds no reservation. Scans
// never link into such a slot.
var invalid = &marker{}

// slot is one hazard-era reservation.
type slot struct {
	first atomic.Pointer[marker] // reservation chain, or invalid
	epoch atomicx.Versioned      // (published epoch, request seq)

	// help request cells, meaningful while result holds (pending, seq)
	target     atomic.Pointer[atomic.Uint64]
	owner      atomic.Uint32
	ownerBirth atomic.Uint64
	result     atomicx.Versioned

	_ cpu.CacheLinePad
}

type wfrThread struct {
	_        cpu.CacheLinePad
	slots    []slot
	batch    *batch
	freeable []*batch
	allocs   uint64
	retired  atomic.Int64
	_        cpu.CacheLinePad
}

// wfrTracker implements hazard eras with batched, reference-counted
// retirement. With attempts > 0 the protected read gives up after that
// many epoch changes and asks allocating threads for help, which makes
// it wait-free. With attempts == 0 it retries forever (HR).
type wfrTracker struct {
	storage   Storage
	clock     *memory.Clock
	threads   []wfrThread
	slow      atomicx.PaddedInt64 // open help requests
	attempts  int
	period    uint64
	emptyFreq int
	collect   bool
}

func newWFR(s Storage, cfg Config) *wfrTracker {
	w := &wfrTracker{
		storage:   s,
		clock:     memory.NewClock(),
		threads:   make([]wfrThread, cfg.Workers),
		attempts:  cfg.FastPathAttempts,
		period:    cfg.epochPeriod(),
		emptyFreq: cfg.EmptyFreq,
		collect:   !cfg.NoCollect,
	}
	for i := range w.threads {
		th := &w.threads[i]
		th.slots = make([]slot, cfg.Slots)
		for j := range th.slots {
			th.slots[j].first.Store(invalid)
		}
		th.freeable = make([]*batch, 0, freeCacheSize)
	}
	return w
}

func newHR(s Storage, cfg Config) *wfrTracker {
	w := newWFR(s, cfg)
	w.attempts = 0
	return w
}

func (w *wfrTracker) StartOp(int) {}
func (w *wfrTracker) EndOp(int)   {}

// Alloc advances the epoch once per period, helping every open request
// first so none of them can starve behind the advance.
func (w *wfrTracker) Alloc(tid int) memory.Ref {
	th := &w.threads[tid]
	th.allocs++
	if th.allocs%w.period == 0 {
		w.helpAll()
		w.clock.Advance()
	}
	ref := w.storage.Allocate()
	w.storage.Header(ref).SetBirth(w.clock.Load())
	return ref
}

func (w *wfrTracker) Read(src *atomic.Uint64, j, tid int, owner memory.Ref) uint64 {
	th := &w.threads[tid]
	s := &th.slots[j]
	prev := published(s)
	for n := 0; w.attempts == 0 || n < w.attempts; n++ {
		word := src.Load()
		curr := w.clock.Load()
		if curr == prev {
			return word
		}
		prev = w.publish(th, s, curr)
	}
	return w.slowPath(s, src, owner)
}

func (w *wfrTracker) ReserveSlot(word uint64, j, tid int, owner memory.Ref) {
	th := &w.threads[tid]
	s := &th.slots[j]
	prev := published(s)
	for n := 0; w.attempts == 0 || n < w.attempts; n++ {
		curr := w.clock.Load()
		if curr == prev {
			return
		}
		prev = w.publish(th, s, curr)
	}
	w.slowPath(s, nil, owner)
}

// published is the epoch a slot currently protects. A cleared slot
// protects nothing, whatever its epoch word still says.
func published(s *slot) uint64 {
	if s.first.Load() == invalid {
		return 0
	}
	return s.epoch.Value()
}

// publish releases the slot's chain and stores a fresh epoch. It returns
// the epoch stored.
func (w *wfrTracker) publish(th *wfrThread, s *slot, curr uint64) uint64 {
	if s.first.Load() != nil {
		if head := s.first.Swap(nil); head != invalid {
			w.release(th, head)
		}
		curr = w.clock.Load()
	}
	s.epoch.Store(curr, s.epoch.Seq())
	return curr
}

func (w *wfrTracker) Reclaim(ref memory.Ref, _ int) { w.storage.Free(ref) }

func (w *wfrTracker) ClearAll(tid int) {
	th := &w.threads[tid]
	for j := range th.slots {
		if head := th.slots[j].first.Swap(invalid); head != invalid {
			w.traverse(th, head)
		}
	}
	w.flush(th)
}

func (w *wfrTracker) RetiredCount(tid int) int64 { return w.threads[tid].retired.Load() }
