package sequence

import "sync/atomic"

// Sequencer issues strictly increasing run ids.
type Sequencer struct {
	last atomic.Uint64
}

// New starts after last; 0 on a fresh store.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

// Next returns a fresh id.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}
