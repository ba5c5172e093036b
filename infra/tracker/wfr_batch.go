package tracker

import (
	"sync/atomic"

	"smr/infra/memory"
)

// batch is a group of retired records freed together once no slot that
// could protect any of them still references it.
type batch struct {
	refs     atomic.Int64
	minBirth uint64
	members  []memory.Ref
	owner    int
}

// marker links a batch into one slot's reservation chain.
type marker struct {
	next  *marker
	batch *batch
}

func (w *wfrTracker) Retire(ref memory.Ref, tid int) {
	if ref == 0 {
		return
	}
	h := w.storage.Header(ref)
	mustRetire(h, ref)
	th := &w.threads[tid]
	th.retired.Add(1)

	birth := h.Birth()
	b := th.batch
	if b == nil {
		b = &batch{minBirth: birth, owner: tid, members: make([]memory.Ref, 0, w.emptyFreq)}
		th.batch = b
	} else if birth < b.minBirth {
		b.minBirth = birth
	}
	b.members = append(b.members, ref)

	if w.collect && len(b.members) >= w.emptyFreq {
		th.batch = nil
		w.scan(th, b)
	}
}

// scan links b into every active slot whose epoch could cover one of its
// members. The link count is added once; whoever brings the count to
// zero owns the batch.
func (w *wfrTracker) scan(th *wfrThread, b *batch) {
	var links int64
	m := &marker{batch: b}
	for i := range w.threads {
		slots := w.threads[i].slots
		for j := range slots {
			if link(&slots[j], m, b.minBirth) {
				links++
				m = &marker{batch: b}
			}
		}
	}
	if b.refs.Add(links) == 0 {
		w.pushFreeable(th, b)
	}
}

func link(s *slot, m *marker, minBirth uint64) bool {
	prev := s.first.Load()
	for {
		if prev == invalid || s.epoch.Value() < minBirth {
			return false
		}
		m.next = prev
		if s.first.CompareAndSwap(prev, m) {
			return true
		}
		prev = s.first.Load()
	}
}

// release drops a chain taken off a slot and flushes once the cache fills.
func (w *wfrTracker) release(th *wfrThread, head *marker) {
	w.traverse(th, head)
	if len(th.freeable) >= freeCacheSize {
		w.flush(th)
	}
}

func (w *wfrTracker) traverse(th *wfrThread, head *marker) {
	for m := head; m != nil; {
		next := m.next
		if m.batch.refs.Add(-1) == 0 {
			th.freeable = append(th.freeable, m.batch)
		}
		m = next
	}
}

func (w *wfrTracker) pushFreeable(th *wfrThread, b *batch) {
	th.freeable = append(th.freeable, b)
	if len(th.freeable) >= freeCacheSize {
		w.flush(th)
	}
}

func (w *wfrTracker) flush(th *wfrThread) {
	for i, b := range th.freeable {
		for _, ref := range b.members {
			w.storage.Free(ref)
		}
		w.threads[b.owner].retired.Add(-int64(len(b.members)))
		th.freeable[i] = nil
	}
	th.freeable = th.freeable[:0]
}
