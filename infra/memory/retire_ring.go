package memory

import "sync/atomic"

// Retired is a record waiting for reclamation, stamped with the epoch it
// was retired in.
type Retired struct {
	Ref   Ref
	Epoch uint64
}

// RetireRing is a lock-free SPSC ring buffer for retired records.
// Entries leave in the order they were retired, so epochs are
// non-decreasing from tail to head.
type RetireRing struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []Retired
	mask  uint64
}

func NewRetireRing(size uint64) *RetireRing {
	if size == 0 || size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing{
		buf:  make([]Retired, size),
		mask: size - 1,
	}
}

// Enqueue adds an entry; returns false if full.
func (r *RetireRing) Enqueue(v Retired) bool {
	h := r.head
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = v
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// Peek returns the oldest entry without removing it.
func (r *RetireRing) Peek() (Retired, bool) {
	t := r.tail
	if t == atomic.LoadUint64(&r.head) {
		return Retired{}, false
	}
	return r.buf[t&r.mask], true
}

// Dequeue removes the oldest entry.
func (r *RetireRing) Dequeue() (Retired, bool) {
	t := r.tail
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return Retired{}, false
	}
	v := r.buf[t&r.mask]
	r.buf[t&r.mask] = Retired{}
	atomic.StoreUint64(&r.tail, t+1)
	return v, true
}

// ReclaimBefore frees every entry retired strictly before min and
// reports how many were freed. FIFO order means the first entry that is
// not yet safe stops the drain.
func (r *RetireRing) ReclaimBefore(min uint64, free func(Ref)) int {
	n := 0
	for {
		v, ok := r.Peek()
		if !ok || v.Epoch >= min {
			return n
		}
		r.Dequeue()
		free(v.Ref)
		n++
	}
}

// IsFull reports whether Enqueue would fail.
func (r *RetireRing) IsFull() bool {
	h := atomic.LoadUint64(&r.head)
	t := atomic.LoadUint64(&r.tail)
	return h-t == uint64(len(r.buf))
}
