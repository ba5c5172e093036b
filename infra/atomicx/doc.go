// Package atomicx holds the small atomic building blocks the reclamation
// backends share: a versioned (value, sequence) word with compare-and-swap
// over both halves, and cache-line padded counters for per-thread state.
//
// Go has no double-width compare-and-swap, so Versioned emulates one by
// swinging an atomic pointer between immutable pairs. A pair is never
// mutated after publication and the garbage collector keeps an address
// from being reused while any goroutine can still compare against it, so
// the pointer CAS cannot suffer ABA.
package atomicx
