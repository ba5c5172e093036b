// Package skiplist is a lock-free ordered map built on a reclamation
// tracker.
//
// Deletion is two-phase: a remove marks the node's forward words top
// down, and the level-0 mark is the linearization point. Physical
// unlinking is done by find, which splices out marked nodes it passes
// and retires a node once its last predecessor link is gone.
package skiplist
