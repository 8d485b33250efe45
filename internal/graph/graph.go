package graph

import (
	"fmt"
	"sort"
)

// Kind identifies a resource type in the topology.
type Kind string

// Resource kinds supported by the topology graph.
const (
	KindNetwork       Kind = "network"
	KindSubnet        Kind = "subnet"
	KindFirewallRule  Kind = "firewall_rule"
	KindRoute         Kind = "route"
	KindPeering       Kind = "peering"
	KindInstanceGroup Kind = "instance_group"
	KindLoadBalancer  Kind = "load_balancer"
	KindAutoscaler    Kind = "autoscaler"
)

// Kinds lists all supported kinds in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindNetwork,
		KindSubnet,
		KindFirewallRule,
		KindRoute,
		KindPeering,
		KindInstanceGroup,
		KindLoadBalancer,
		KindAutoscaler,
	}
}

// Identity uniquely names a resource by kind and name.
type Identity struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// String returns the canonical "kind/name" form used in logs and state keys.
func (id Identity) String() string {
	return string(id.Kind) + "/" + id.Name
}

// Status tracks a node through a reconciliation pass.
type Status int

// Node statuses, in lifecycle order.
const (
	StatusUnplanned Status = iota
	StatusPlanned
	StatusApplying
	StatusApplied
	StatusFailed
)

// String implements fmt.Stringer for logging.
func (s Status) String() string {
	switch s {
	case StatusUnplanned:
		return "unplanned"
	case StatusPlanned:
		return "planned"
	case StatusApplying:
		return "applying"
	case StatusApplied:
		return "applied"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Node is a single declared resource.
type Node struct {
	ID        Identity
	Attrs     map[string]string
	DependsOn []Identity
	Status    Status
}

// Graph is a dependency graph of declared resources.
//
// Edges point from a dependent node to its dependency. Insertion order is
// preserved and used to break ties in TopologicalOrder, so the ordering is
// deterministic for a given declaration.
type Graph struct {
	nodes map[Identity]*Node
	order []Identity // declaration order
	deps  map[Identity]map[Identity]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[Identity]*Node),
		deps:  make(map[Identity]map[Identity]struct{}),
	}
}

// AddNode adds a node to the graph. The node's DependsOn entries are not
// turned into edges; call AddEdge once all endpoints are present.
func (g *Graph) AddNode(n *Node) error {
	if _, ok := g.nodes[n.ID]; ok {
		return &DuplicateError{ID: n.ID}
	}
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	g.deps[n.ID] = make(map[Identity]struct{})
	return nil
}

// AddEdge records that from depends on to. Both endpoints must already be in
// the graph, and a node may not depend on itself.
func (g *Graph) AddEdge(from, to Identity) error {
	if _, ok := g.nodes[from]; !ok {
		return &DanglingError{From: from, To: to, Missing: from}
	}
	if _, ok := g.nodes[to]; !ok {
		return &DanglingError{From: from, To: to, Missing: to}
	}
	if from == to {
		// a self edge is the degenerate cycle
		return &CycleError{Path: []Identity{from, from}}
	}
	g.deps[from][to] = struct{}{}
	return nil
}

// Node returns the node for the given identity, or nil if absent.
func (g *Graph) Node(id Identity) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Dependencies returns the identities the given node depends on, sorted by
// declaration order.
func (g *Graph) Dependencies(id Identity) []Identity {
	return g.sortByDeclaration(g.deps[id])
}

// Dependents returns the identities that depend on the given node, sorted by
// declaration order.
func (g *Graph) Dependents(id Identity) []Identity {
	set := make(map[Identity]struct{})
	for from, tos := range g.deps {
		if _, ok := tos[id]; ok {
			set[from] = struct{}{}
		}
	}
	return g.sortByDeclaration(set)
}

// TopologicalOrder returns the node identities ordered so that every
// dependency precedes its dependents. Ties are broken by declaration order.
// If the graph contains a cycle, a *CycleError naming the cycle path is
// returned and no ordering is produced.
func (g *Graph) TopologicalOrder() ([]Identity, error) {
	indegree := make(map[Identity]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	// indegree counts unresolved dependencies of each node
	for from := range g.deps {
		indegree[from] = len(g.deps[from])
	}

	pos := g.position()

	var ready []Identity
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]Identity, 0, len(g.nodes))
	for len(ready) > 0 {
		// ready is kept in declaration order, so popping the head keeps
		// the overall ordering deterministic.
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)

		for _, dep := range g.Dependents(id) {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertByDeclaration(ready, dep, pos)
			}
		}
	}

	if len(out) != len(g.nodes) {
		return nil, &CycleError{Path: g.findCycle()}
	}
	return out, nil
}

// position returns a lookup from identity to declaration index.
func (g *Graph) position() map[Identity]int {
	pos := make(map[Identity]int, len(g.order))
	for i, id := range g.order {
		pos[id] = i
	}
	return pos
}

func insertByDeclaration(ready []Identity, id Identity, pos map[Identity]int) []Identity {
	i := sort.Search(len(ready), func(i int) bool {
		return pos[ready[i]] > pos[id]
	})
	ready = append(ready, Identity{})
	copy(ready[i+1:], ready[i:])
	ready[i] = id
	return ready
}

func (g *Graph) sortByDeclaration(set map[Identity]struct{}) []Identity {
	if len(set) == 0 {
		return nil
	}
	pos := g.position()
	out := make([]Identity, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return pos[out[i]] < pos[out[j]] })
	return out
}

// findCycle locates one dependency cycle and returns its path, ending where
// it started. Called only after TopologicalOrder has proven a cycle exists.
func (g *Graph) findCycle() []Identity {
	const (
		white = iota // unvisited
		grey         // on the current DFS stack
		black        // fully explored
	)
	color := make(map[Identity]int, len(g.nodes))
	var stack []Identity
	var cycle []Identity

	var visit func(id Identity) bool
	visit = func(id Identity) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.sortByDeclaration(g.deps[id]) {
			switch color[dep] {
			case grey:
				// unwind the stack back to dep to extract the cycle
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append([]Identity{}, stack[i:]...)
						cycle = append(cycle, dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			break
		}
	}
	return cycle
}
