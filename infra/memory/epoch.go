package memory

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Clock is the global epoch. It monotonically increases and starts at 1,
// so a zero reservation never equals the current epoch.
type Clock struct {
	_ cpu.CacheLinePad
	v atomic.Uint64
	_ cpu.CacheLinePad
}

func NewClock() *Clock {
	c := &Clock{}
	c.v.Store(1)
	return c
}

func (c *Clock) Load() uint64 { return c.v.Load() }

// Advance bumps the epoch and returns the new value.
func (c *Clock) Advance() uint64 { return c.v.Add(1) }

// Inactive is the epoch of a reader outside any read section.
const Inactive = ^uint64(0)

// ReaderEpoch marks when a reader entered a read section.
type ReaderEpoch struct {
	_     cpu.CacheLinePad
	epoch atomic.Uint64
	_     cpu.CacheLinePad
}

func NewReaderEpoch() *ReaderEpoch {
	r := &ReaderEpoch{}
	r.epoch.Store(Inactive)
	return r
}

func (r *ReaderEpoch) Enter(c *Clock) {
	r.epoch.Store(c.Load())
}

func (r *ReaderEpoch) Exit() {
	r.epoch.Store(Inactive)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// MinReaderEpoch returns the oldest epoch any active reader entered at,
// or Inactive if none is reading.
func MinReaderEpoch(rs ...*ReaderEpoch) uint64 {
	min := Inactive
	for _, r := range rs {
		if r == nil {
			continue
		}
		if v := r.Value(); v < min {
			min = v
		}
	}
	return min
}
