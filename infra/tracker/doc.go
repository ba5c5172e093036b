// Package tracker implements safe memory reclamation for lock-free data
// structures whose nodes live in a memory.Arena.
//
// A data structure talks to a Tracker, which forwards to one Backend
// chosen by name at construction:
//
//	NIL  never reclaims; retire only counts
//	RCU  reader epochs with a per-thread retire ring
//	HR   hazard eras with batched reference-counted retirement
//	WFR  HR with a bounded fast path and a wait-free helping slow path
//
// Every operation takes the caller's thread id (tid), a dense index in
// [0, Workers). A tid must be used by one goroutine at a time.
//
// Usage per map operation:
//
//	t.StartOp(tid)
//	w := t.Read(&node.next[l], slot, tid, nodeRef)
//	...
//	t.EndOp(tid)
//	t.ClearAll(tid)
//
// Nothing here returns an error after construction. Retiring a record
// twice or freeing one twice panics; both are caller bugs.
package tracker
