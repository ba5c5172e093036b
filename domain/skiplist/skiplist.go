package skiplist

import (
	"cmp"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"smr/infra/memory"
	"smr/infra/tracker"
)

// SkipList is a lock-free ordered map. Nodes live in an arena and are
// reclaimed through a tracker; every operation takes the caller's tid.
type SkipList[K cmp.Ordered, V any] struct {
	arena   *memory.Arena[node[K, V]]
	tr      *tracker.Tracker
	head    memory.Ref
	scratch *memory.Pool[window]
	threads []threadState

	// levels picks the top level of a new node.
	levels func(tid int) int

	violations atomic.Int64
}

type window struct {
	preds [MaxLevel + 1]memory.Ref
	succs [MaxLevel + 1]memory.Ref
}

type threadState struct {
	_       cpu.CacheLinePad
	rng     *rand.Rand
	samples int64
	sum     int64
	peak    int64
	_       cpu.CacheLinePad
}

// New builds an empty list reclaimed by the named backend. cfg.Slots is
// overridden with what the list needs.
func New[K cmp.Ordered, V any](backend string, cfg tracker.Config) (*SkipList[K, V], error) {
	arena := memory.NewArena(poison[K, V])
	cfg.Slots = Slots
	tr, err := tracker.New(backend, arena, cfg)
	if err != nil {
		return nil, err
	}
	workers := max(cfg.Workers, 1)
	s := &SkipList[K, V]{
		arena:   arena,
		tr:      tr,
		threads: make([]threadState, workers),
		scratch: memory.NewPool(
			func() *window { return new(window) },
			func(w *window) { *w = window{} },
		),
	}
	for tid := range s.threads {
		s.threads[tid].rng = rand.New(rand.NewPCG(uint64(tid)+1, 0x5eed))
	}
	s.levels = func(tid int) int { return s.threads[tid].rng.IntN(MaxLevel + 1) }

	s.head = tr.Alloc(0)
	h := arena.Get(s.head)
	h.topLevel = MaxLevel
	h.canary.Store(canaryLive)
	return s, nil
}

// Tracker exposes the reclamation tracker.
func (s *SkipList[K, V]) Tracker() *tracker.Tracker { return s.tr }

// InUse reports arena records not yet freed, head included.
func (s *SkipList[K, V]) InUse() int64 { return s.arena.InUse() }

// Violations counts dereferences of freed nodes and reference count
// underflows. Anything but zero is a reclamation bug.
func (s *SkipList[K, V]) Violations() int64 { return s.violations.Load() }

// deref returns the node behind r, recording a violation if it was freed.
func (s *SkipList[K, V]) deref(r memory.Ref) *node[K, V] {
	n := s.arena.Get(r)
	if n.canary.Load() != canaryLive {
		s.violations.Add(1)
	}
	return n
}

func (s *SkipList[K, V]) newNode(tid int, key K, value V, top int) memory.Ref {
	r := s.tr.Alloc(tid)
	n := s.arena.Get(r)
	n.key, n.value = key, value
	n.topLevel = top
	n.refcnt.Store(int64(top + 1))
	n.canary.Store(canaryLive)
	s.tr.ReserveSlot(pack(r), newSlot, tid, 0)
	return r
}

// unref drops d predecessor links and retires the node on the last one.
func (s *SkipList[K, V]) unref(r memory.Ref, d int64, tid int) {
	switch c := s.deref(r).refcnt.Add(-d); {
	case c == 0:
		s.tr.Retire(r, tid)
	case c < 0:
		s.violations.Add(1)
	}
}

// rollback abandons an insert at level l: levels l..topLevel never got
// published, so their references are returned at once.
func (s *SkipList[K, V]) rollback(r memory.Ref, l, tid int) {
	s.unref(r, int64(s.deref(r).topLevel+1-l), tid)
}

func (s *SkipList[K, V]) begin(tid int) *window {
	s.sample(tid)
	s.tr.StartOp(tid)
	return s.scratch.Get()
}

func (s *SkipList[K, V]) end(tid int, w *window) {
	s.tr.EndOp(tid)
	s.tr.ClearAll(tid)
	s.scratch.Put(w)
}

// readNext loads curr's level-l successor. A node whose level-0 word is
// marked is gone; its level-l word is marked here so find unlinks it.
func (s *SkipList[K, V]) readNext(curr memory.Ref, l, slot, tid int) uint64 {
	n := s.deref(curr)
	w := s.tr.Read(&n.next[l], slot, tid, curr)
	if l == 0 || marked(w) || !marked(n.next[0].Load()) {
		return w
	}
	for !marked(w) {
		if n.next[l].CompareAndSwap(w, w|1) {
			return w | 1
		}
		w = s.tr.Read(&n.next[l], slot, tid, curr)
	}
	return w
}

// find fills win with the predecessor and successor of key at every
// level, unlinking marked nodes on the way, and reports whether succs[0]
// holds key.
func (s *SkipList[K, V]) find(key K, tid int, win *window) bool {
retry:
	for {
		pred := s.head
		idx := 0
		var curr memory.Ref
		for l := MaxLevel; l >= 0; l-- {
			w := s.tr.Read(&s.deref(pred).next[l], idx+1, tid, pred)
			if marked(w) {
				continue retry
			}
			curr = ref(w)
			for curr != 0 {
				succ := s.readNext(curr, l, idx+2, tid)
				for marked(succ) {
					if !s.deref(pred).next[l].CompareAndSwap(pack(curr), pack(ref(succ))) {
						continue retry
					}
					s.unref(curr, 1, tid)
					curr = ref(succ)
					s.tr.Transfer(idx+2, idx+1, tid)
					if curr == 0 {
						break
					}
					succ = s.readNext(curr, l, idx+2, tid)
				}
				if curr == 0 || s.deref(curr).key >= key {
					break
				}
				pred = curr
				s.tr.Transfer(idx+1, idx, tid)
				curr = ref(succ)
				s.tr.Transfer(idx+2, idx+1, tid)
			}
			win.preds[l] = pred
			win.succs[l] = curr
			idx += 2
		}
		return curr != 0 && s.deref(curr).key == key
	}
}

// Get returns the value stored under key.
func (s *SkipList[K, V]) Get(key K, tid int) (V, bool) {
	win := s.begin(tid)
	defer s.end(tid, win)

	var v V
	if s.find(key, tid, win) {
		return s.deref(win.succs[0]).value, true
	}
	return v, false
}

// Put stores value under key and returns the value it replaced.
func (s *SkipList[K, V]) Put(key K, value V, tid int) (prior V, ok bool) {
	top := s.levels(tid)
	win := s.begin(tid)
	defer s.end(tid, win)

	nn := s.newNode(tid, key, value, top)
	n := s.deref(nn)

	var present bool
	var victim memory.Ref
	for {
		present = s.find(key, tid, win)
		for l := 0; l <= top; l++ {
			n.next[l].Store(pack(win.succs[l]))
		}
		victim = win.succs[0]
		if s.deref(win.preds[0]).next[0].CompareAndSwap(pack(victim), pack(nn)) {
			break
		}
	}

	if present {
		s.markUpper(victim)
		if succ, won := s.markBottom(victim); won {
			prior, ok = s.deref(victim).value, true
			if n.next[0].CompareAndSwap(pack(victim), pack(succ)) {
				s.unref(victim, 1, tid)
			}
		}
		if top != 0 && !s.refind(key, nn, tid, win) {
			return prior, ok
		}
	}

	s.linkLevels(key, nn, 1, top, tid, win)
	return prior, ok
}

// refind refreshes win once nn holds level 0. If a remove has already
// taken nn, its unlinked upper levels are rolled back and refind reports
// false.
func (s *SkipList[K, V]) refind(key K, nn memory.Ref, tid int, win *window) bool {
	if !s.find(key, tid, win) || win.succs[0] != nn {
		s.rollback(nn, 1, tid)
		return false
	}
	return true
}

// Insert adds key if it is absent and reports whether it did.
func (s *SkipList[K, V]) Insert(key K, value V, tid int) bool {
	top := s.levels(tid)
	win := s.begin(tid)
	defer s.end(tid, win)

	nn := s.newNode(tid, key, value, top)
	n := s.deref(nn)
	for {
		if s.find(key, tid, win) {
			s.tr.Reclaim(nn, tid)
			return false
		}
		for l := 0; l <= top; l++ {
			n.next[l].Store(pack(win.succs[l]))
		}
		if s.deref(win.preds[0]).next[0].CompareAndSwap(pack(win.succs[0]), pack(nn)) {
			break
		}
	}
	s.linkLevels(key, nn, 1, top, tid, win)
	return true
}

// linkLevels publishes nn at levels from..to. A mark on nn, or nn
// vanishing from the list, means a remove overtook the insert: the
// missing references are rolled back and linking stops.
func (s *SkipList[K, V]) linkLevels(key K, nn memory.Ref, from, to, tid int, win *window) bool {
	n := s.deref(nn)
	for l := from; l <= to; l++ {
		for {
			pred, succ := win.preds[l], win.succs[l]
			expected := n.next[l].Load()
			for expected != pack(succ) {
				if marked(expected) {
					s.rollback(nn, l, tid)
					return false
				}
				if n.next[l].CompareAndSwap(expected, pack(succ)) {
					expected = pack(succ)
				} else {
					expected = n.next[l].Load()
				}
			}
			if s.deref(pred).next[l].CompareAndSwap(pack(succ), pack(nn)) {
				break
			}
			if !s.find(key, tid, win) || win.succs[0] != nn {
				s.rollback(nn, l, tid)
				return false
			}
		}
	}
	return true
}

// Remove deletes key and returns its value. The node is unlinked by the
// traversal that follows the mark, or by whichever find passes it next.
func (s *SkipList[K, V]) Remove(key K, tid int) (prior V, ok bool) {
	win := s.begin(tid)
	defer s.end(tid, win)

	if !s.find(key, tid, win) {
		return prior, false
	}
	victim := win.succs[0]
	s.markUpper(victim)
	if _, won := s.markBottom(victim); won {
		prior, ok = s.deref(victim).value, true
		s.find(key, tid, win)
	}
	return prior, ok
}

// Replace is part of the map contract but has no implementation; it
// always reports absent and leaves the map unchanged.
func (s *SkipList[K, V]) Replace(key K, value V, tid int) (V, bool) {
	var v V
	return v, false
}

// markUpper marks every level above 0, top first.
func (s *SkipList[K, V]) markUpper(r memory.Ref) {
	n := s.deref(r)
	for l := n.topLevel; l >= 1; l-- {
		for w := n.next[l].Load(); !marked(w); w = n.next[l].Load() {
			if n.next[l].CompareAndSwap(w, w|1) {
				break
			}
		}
	}
}

// markBottom marks level 0. It reports the successor at the time of the
// mark and whether this call was the one that set it.
func (s *SkipList[K, V]) markBottom(r memory.Ref) (memory.Ref, bool) {
	n := s.deref(r)
	for w := n.next[0].Load(); !marked(w); w = n.next[0].Load() {
		if n.next[0].CompareAndSwap(w, w|1) {
			return ref(w), true
		}
	}
	return 0, false
}

func (s *SkipList[K, V]) sample(tid int) {
	ts := &s.threads[tid]
	c := s.tr.RetiredCount(tid)
	ts.samples++
	ts.sum += c
	if c > ts.peak {
		ts.peak = c
	}
}

// RetiredStats reports the average and peak retired-but-unfreed count
// seen at the start of operations. Call only when no operation runs.
func (s *SkipList[K, V]) RetiredStats() (avg float64, peak int64) {
	var n, sum int64
	for i := range s.threads {
		ts := &s.threads[i]
		n += ts.samples
		sum += ts.sum
		peak = max(peak, ts.peak)
	}
	if n == 0 {
		return 0, peak
	}
	return float64(sum) / float64(n), peak
}

// Len counts live keys. Call only when no operation runs.
func (s *SkipList[K, V]) Len() int {
	n := 0
	for r := ref(s.arena.Get(s.head).next[0].Load()); r != 0; {
		w := s.arena.Get(r).next[0].Load()
		if !marked(w) {
			n++
		}
		r = ref(w)
	}
	return n
}

// Keys returns live keys in order. Call only when no operation runs.
func (s *SkipList[K, V]) Keys() []K {
	var out []K
	for r := ref(s.arena.Get(s.head).next[0].Load()); r != 0; {
		nd := s.arena.Get(r)
		w := nd.next[0].Load()
		if !marked(w) {
			out = append(out, nd.key)
		}
		r = ref(w)
	}
	return out
}
