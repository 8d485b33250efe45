// Package graph models the declared resource topology as a directed
// acyclic graph of typed nodes.
//
// Nodes carry the declared attributes of a single cloud resource and the
// identities of the resources they depend on. The graph rejects duplicate
// identities, dangling references, and cycles, and produces a deterministic
// topological ordering used by the diff engine and the executor.
package graph
