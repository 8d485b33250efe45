// Package diff computes the change set that moves live state toward the
// declared topology.
//
// Planning is pure: it reads the declared graph, the state store's prior
// records, and a fresh live snapshot, and produces operations without side
// effects. That makes dry runs exact previews of an apply.
package diff
