// Package memory provides the storage primitives the reclamation
// backends are built on: an arena of indexed records with a metadata
// header, the global epoch clock, per-reader epochs, a retire ring and a
// typed scratch pool.
//
// The arena never hands memory back to the Go runtime. Freeing a record
// runs its destructor (which poisons the payload), bumps the record's
// generation and pushes the index on a lock-free free stack, so indices
// are reused and every ABA hazard of manual memory management is real.
// Deciding when a Free is safe is the job of package tracker.
package memory
