package memory

import "sync/atomic"

// State is the lifecycle stage of an arena record.
type State uint32

const (
	StateFree State = iota
	StateLive
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateLive:
		return "LIVE"
	case StateRetired:
		return "RETIRED"
	default:
		return "UNKNOWN"
	}
}

// Header is the metadata stored next to every payload.
type Header struct {
	birth    atomic.Uint64
	state    atomic.Uint32
	gen      atomic.Uint32
	nextFree atomic.Uint32
}

// Birth is the epoch in effect when the record was allocated.
func (h *Header) Birth() uint64 { return h.birth.Load() }

func (h *Header) SetBirth(epoch uint64) { h.birth.Store(epoch) }

func (h *Header) State() State { return State(h.state.Load()) }

// Gen counts how many times the record has been freed.
func (h *Header) Gen() uint32 { return h.gen.Load() }

// MarkRetired moves a Live record to Retired. It reports false if the
// record was not Live.
func (h *Header) MarkRetired() bool {
	return h.state.CompareAndSwap(uint32(StateLive), uint32(StateRetired))
}
