package atomicx

import "sync/atomic"

type pair struct {
	value uint64
	seq   uint64
}

var zeroPair = &pair{}

// Versioned is an atomic (value, sequence) word.
// The zero value holds (0, 0).
type Versioned struct {
	p atomic.Pointer[pair]
}

func (v *Versioned) load() *pair {
	if p := v.p.Load(); p != nil {
		return p
	}
	return zeroPair
}

// Load returns both halves from a single snapshot.
func (v *Versioned) Load() (value, seq uint64) {
	p := v.load()
	return p.value, p.seq
}

// Value returns the value half.
func (v *Versioned) Value() uint64 {
	return v.load().value
}

// Seq returns the sequence half.
func (v *Versioned) Seq() uint64 {
	return v.load().seq
}

// Store publishes (value, seq).
func (v *Versioned) Store(value, seq uint64) {
	v.p.Store(&pair{value: value, seq: seq})
}

// CompareAndSwap replaces (oldValue, oldSeq) with (newValue, newSeq).
// It is a strong CAS: it fails only if the current contents differ.
func (v *Versioned) CompareAndSwap(oldValue, oldSeq, newValue, newSeq uint64) bool {
	var next *pair
	for {
		cur := v.p.Load()
		cv, cs := uint64(0), uint64(0)
		if cur != nil {
			cv, cs = cur.value, cur.seq
		}
		if cv != oldValue || cs != oldSeq {
			return false
		}
		if next == nil {
			next = &pair{value: newValue, seq: newSeq}
		}
		if v.p.CompareAndSwap(cur, next) {
			return true
		}
	}
}
