package tracker

import (
	"sync/atomic"

	"smr/infra/memory"
)

// slowPath asks for help after the fast path ran out of attempts.
func (w *wfrTracker) slowPath(s *slot, src *atomic.Uint64, owner memory.Ref) uint64 {
	seq := w.post(s, src, owner)
	return w.await(s, src, seq)
}

// post opens a help request on s and returns its sequence number.
func (w *wfrTracker) post(s *slot, src *atomic.Uint64, owner memory.Ref) uint64 {
	w.slow.Add(1)
	s.first.CompareAndSwap(invalid, nil)
	seq := s.epoch.Seq()
	var birth uint64
	if owner != 0 {
		birth = w.storage.Header(owner).Birth()
	}
	s.target.Store(src)
	s.owner.Store(uint32(owner))
	s.ownerBirth.Store(birth)
	s.result.Store(pending, seq)
	return seq
}

// await runs the requester's side of the protocol until the request has
// a result, then closes it.
func (w *wfrTracker) await(s *slot, src *atomic.Uint64, seq uint64) uint64 {
	for {
		e := s.epoch.Value()
		var word uint64
		if src != nil {
			word = src.Load()
		}
		curr := w.clock.Load()
		if curr == e {
			s.result.CompareAndSwap(pending, seq, word, seq)
			break
		}
		s.epoch.CompareAndSwap(e, seq, curr, seq)
		if s.result.Value() != pending {
			break
		}
	}
	word := s.result.Value()

	// bump seq so late helpers fail on this slot
	for {
		e, sq := s.epoch.Load()
		if s.epoch.CompareAndSwap(e, sq, e, seq+1) {
			break
		}
	}
	s.target.Store(nil)
	w.slow.Add(-1)
	return word
}

func (w *wfrTracker) helpAll() {
	if w.slow.Load() == 0 {
		return
	}
	for i := range w.threads {
		slots := w.threads[i].slots
		for j := range slots {
			if slots[j].result.Value() == pending {
				w.help(&slots[j])
			}
		}
	}
}

// help completes one request on behalf of its owner: it raises the slot
// epoch until a load of the target happens within it, then installs the
// loaded word as the result.
func (w *wfrTracker) help(s *slot) {
	v, seq := s.result.Load()
	if v != pending {
		return
	}
	src := s.target.Load()
	if owner := memory.Ref(s.owner.Load()); owner != 0 {
		if w.storage.Header(owner).Birth() != s.ownerBirth.Load() {
			return
		}
	}
	for {
		e, es := s.epoch.Load()
		if es != seq {
			return
		}
		var word uint64
		if src != nil {
			word = src.Load()
		}
		curr := w.clock.Load()
		if curr == e {
			s.result.CompareAndSwap(pending, seq, word, seq)
			return
		}
		s.epoch.CompareAndSwap(e, seq, curr, seq)
		if v, rs := s.result.Load(); v != pending || rs != seq {
			return
		}
	}
}
