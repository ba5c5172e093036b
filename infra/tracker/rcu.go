package tracker

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"smr/infra/memory"
)

// rcuTracker is epoch-based reclamation. A thread publishes the epoch it
// entered at for the whole operation; a record retired at epoch e is freed
// once every active reader entered after e.
type rcuTracker struct {
	storage   Storage
	clock     *memory.Clock
	readers   []*memory.ReaderEpoch
	threads   []rcuThread
	period    uint64
	emptyFreq uint64
	collect   bool
	free      func(memory.Ref)
}

type rcuThread struct {
	_        cpu.CacheLinePad
	allocs   uint64
	retires  uint64
	ring     *memory.RetireRing
	overflow []memory.Retired
	retired  atomic.Int64
	_        cpu.CacheLinePad
}

func newRCU(s Storage, cfg Config) *rcuTracker {
	r := &rcuTracker{
		storage:   s,
		clock:     memory.NewClock(),
		readers:   make([]*memory.ReaderEpoch, cfg.Workers),
		threads:   make([]rcuThread, cfg.Workers),
		period:    cfg.epochPeriod(),
		emptyFreq: uint64(cfg.EmptyFreq),
		collect:   !cfg.NoCollect,
		free:      s.Free,
	}
	for i := range r.readers {
		r.readers[i] = memory.NewReaderEpoch()
		r.threads[i].ring = memory.NewRetireRing(cfg.RingSize)
	}
	return r
}

func (r *rcuTracker) StartOp(tid int) { r.readers[tid].Enter(r.clock) }

func (r *rcuTracker) EndOp(tid int) { r.readers[tid].Exit() }

func (r *rcuTracker) Alloc(tid int) memory.Ref {
	th := &r.threads[tid]
	th.allocs++
	if th.allocs%r.period == 0 {
		r.clock.Advance()
	}
	ref := r.storage.Allocate()
	r.storage.Header(ref).SetBirth(r.clock.Load())
	return ref
}

func (r *rcuTracker) Read(src *atomic.Uint64, _, _ int, _ memory.Ref) uint64 {
	return src.Load()
}

func (r *rcuTracker) ReserveSlot(uint64, int, int, memory.Ref) {}

func (r *rcuTracker) Retire(ref memory.Ref, tid int) {
	if ref == 0 {
		return
	}
	mustRetire(r.storage.Header(ref), ref)
	th := &r.threads[tid]
	th.retired.Add(1)
	v := memory.Retired{Ref: ref, Epoch: r.clock.Load()}
	if len(th.overflow) > 0 || !th.ring.Enqueue(v) {
		th.overflow = append(th.overflow, v)
	}
	th.retires++
	if r.collect && th.retires%r.emptyFreq == 0 {
		r.empty(th)
	}
}

// empty frees everything older than the oldest active reader, refilling
// the ring from overflow as it drains.
func (r *rcuTracker) empty(th *rcuThread) {
	min := memory.MinReaderEpoch(r.readers...)
	for {
		n := th.ring.ReclaimBefore(min, r.free)
		th.retired.Add(-int64(n))
		moved := 0
		for len(th.overflow) > 0 && !th.ring.IsFull() {
			th.ring.Enqueue(th.overflow[0])
			th.overflow[0] = memory.Retired{}
			th.overflow = th.overflow[1:]
			moved++
		}
		if n == 0 || moved == 0 {
			return
		}
	}
}

func (r *rcuTracker) Reclaim(ref memory.Ref, _ int) { r.storage.Free(ref) }

func (r *rcuTracker) ClearAll(int) {}

func (r *rcuTracker) RetiredCount(tid int) int64 { return r.threads[tid].retired.Load() }
