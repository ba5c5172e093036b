package memory

import (
	"fmt"
	"sync/atomic"
)

// Ref names one arena record. The zero Ref is nil.
type Ref uint32

const (
	chunkShift = 12
	chunkSize  = 1 << chunkShift
	chunkMask  = chunkSize - 1
	maxChunks  = 1 << 14
)

// Capacity is the largest number of records an arena can hand out.
const Capacity = maxChunks*chunkSize - 1

type record[T any] struct {
	value T
	hdr   Header
}

type chunk[T any] [chunkSize]record[T]

// Arena is a lock-free allocator of fixed-type records addressed by Ref.
type Arena[T any] struct {
	chunks  []atomic.Pointer[chunk[T]]
	next    atomic.Uint64
	free    atomic.Uint64 // tag<<32 | top ref
	inUse   atomic.Int64
	frees   atomic.Int64
	destroy func(*T)
}

// NewArena creates an arena. destroy, if non-nil, runs on every Free
// before the record becomes reusable.
func NewArena[T any](destroy func(*T)) *Arena[T] {
	a := &Arena[T]{
		chunks:  make([]atomic.Pointer[chunk[T]], maxChunks),
		destroy: destroy,
	}
	a.next.Store(1) // ref 0 is nil
	return a
}

func (a *Arena[T]) rec(ref Ref) *record[T] {
	return &a.chunks[ref>>chunkShift].Load()[ref&chunkMask]
}

func (a *Arena[T]) ensureChunk(i uint64) {
	if a.chunks[i].Load() == nil {
		a.chunks[i].CompareAndSwap(nil, new(chunk[T]))
	}
}

// Allocate returns a Live record, reusing freed ones first.
func (a *Arena[T]) Allocate() Ref {
	ref, ok := a.pop()
	if !ok {
		n := a.next.Add(1) - 1
		if n > Capacity {
			panic("memory: arena exhausted")
		}
		a.ensureChunk(n >> chunkShift)
		ref = Ref(n)
	}
	a.rec(ref).hdr.state.Store(uint32(StateLive))
	a.inUse.Add(1)
	return ref
}

// Free destroys the record and makes its Ref reusable.
// Freeing a record twice panics.
func (a *Arena[T]) Free(ref Ref) {
	r := a.rec(ref)
	if State(r.hdr.state.Swap(uint32(StateFree))) == StateFree {
		panic(fmt.Sprintf("memory: double free of ref %d", ref))
	}
	if a.destroy != nil {
		a.destroy(&r.value)
	}
	r.hdr.gen.Add(1)
	a.inUse.Add(-1)
	a.frees.Add(1)
	a.push(ref)
}

// Get returns the payload of ref.
func (a *Arena[T]) Get(ref Ref) *T {
	return &a.rec(ref).value
}

// Header returns the metadata header of ref.
func (a *Arena[T]) Header(ref Ref) *Header {
	return &a.rec(ref).hdr
}

// InUse reports records allocated and not yet freed.
func (a *Arena[T]) InUse() int64 { return a.inUse.Load() }

// Frees reports the total number of Free calls.
func (a *Arena[T]) Frees() int64 { return a.frees.Load() }

// -------------------- Free stack --------------------

func (a *Arena[T]) pop() (Ref, bool) {
	for {
		head := a.free.Load()
		top := Ref(head)
		if top == 0 {
			return 0, false
		}
		next := a.rec(top).hdr.nextFree.Load()
		if a.free.CompareAndSwap(head, (head>>32+1)<<32|uint64(next)) {
			return top, true
		}
	}
}

func (a *Arena[T]) push(ref Ref) {
	h := &a.rec(ref).hdr
	for {
		head := a.free.Load()
		h.nextFree.Store(uint32(head))
		if a.free.CompareAndSwap(head, (head>>32+1)<<32|uint64(ref)) {
			return
		}
	}
}
