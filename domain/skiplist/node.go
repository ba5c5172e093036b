package skiplist

import (
	"sync/atomic"

	"smr/infra/memory"
)

// MaxLevel is the highest level a node can occupy.
const MaxLevel = 5

// traversalSlots covers pred, curr and succ roles per level; the roles
// of adjacent levels overlap by one.
const traversalSlots = (MaxLevel+1)*2 + 1

// newSlot holds the node an insert is still linking.
const newSlot = traversalSlots

// Slots is the number of reservation slots a list asks its tracker for.
const Slots = traversalSlots + 1

const (
	canaryLive uint64 = 0x5afe5afe5afe5afe
	canaryDead uint64 = 0xdeaddeaddeaddead
)

type node[K any, V any] struct {
	key      K
	value    V
	topLevel int
	refcnt   atomic.Int64 // predecessor links still pointing here
	next     [MaxLevel + 1]atomic.Uint64
	canary   atomic.Uint64
}

func poison[K any, V any](n *node[K, V]) {
	var zk K
	var zv V
	n.key, n.value = zk, zv
	n.topLevel = 0
	n.refcnt.Store(0)
	for i := range n.next {
		n.next[i].Store(0)
	}
	n.canary.Store(canaryDead)
}

// A forward word is ref<<1 | mark.

func pack(r memory.Ref) uint64 { return uint64(r) << 1 }

func ref(w uint64) memory.Ref { return memory.Ref(w >> 1) }

func marked(w uint64) bool { return w&1 != 0 }
