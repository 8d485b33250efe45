package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

// Op is the planned operation for one node.
type Op string

// Planned operations.
const (
	OpNoOp    Op = "noop"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
)

// Change is one entry of a change set.
type Change struct {
	ID     graph.Identity
	Op     Op
	Before map[string]string // live attributes, nil for Create
	After  map[string]string // declared attributes, nil for Delete

	// ChangedFields lists the differing declared fields, sorted.
	ChangedFields []string

	// ForcedBy lists the immutable fields that forced a Replace, sorted.
	ForcedBy []string

	// Prior is the state store's record, used by the executor as the
	// provider's before-state. Zero for Create without history.
	Prior state.Record

	// HasPrior reports whether Prior is populated.
	HasPrior bool
}

// Conflict is an out-of-band live change the engine refuses to resolve
// automatically: an immutable field changed underneath an otherwise
// unchanged declaration. Overwriting it would destroy a resource the
// declaration did not ask to touch.
type Conflict struct {
	ID       graph.Identity
	Field    string
	Stored   string
	Live     string
	Declared string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: field %q changed out of band (stored %q, live %q, declared %q)",
		c.ID, c.Field, c.Stored, c.Live, c.Declared)
}

// DriftError reports conflicts that require manual resolution.
type DriftError struct {
	Conflicts []Conflict
}

func (e *DriftError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "unresolvable drift: " + strings.Join(parts, "; ")
}

// ChangeSet is the planned operations of one pass, keyed by identity and
// iterable in a deterministic order: declared nodes in declaration order,
// then deletes ordered by identity.
type ChangeSet struct {
	changes map[graph.Identity]Change
	order   []graph.Identity

	// Conflicts holds drift the plan skipped; the affected nodes have no
	// operation in the set.
	Conflicts []Conflict
}

// Get returns the change for id.
func (cs *ChangeSet) Get(id graph.Identity) (Change, bool) {
	c, ok := cs.changes[id]
	return c, ok
}

// All returns every change in deterministic order.
func (cs *ChangeSet) All() []Change {
	out := make([]Change, 0, len(cs.order))
	for _, id := range cs.order {
		out = append(out, cs.changes[id])
	}
	return out
}

// Pending returns the changes that require provider calls (everything but
// NoOp), in the same deterministic order.
func (cs *ChangeSet) Pending() []Change {
	var out []Change
	for _, id := range cs.order {
		if c := cs.changes[id]; c.Op != OpNoOp {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns the number of changes per operation.
func (cs *ChangeSet) Counts() map[Op]int {
	out := make(map[Op]int)
	for _, c := range cs.changes {
		out[c.Op]++
	}
	return out
}

// Drop removes the change for id, if any. Callers use it when the inputs
// that produced the change turned out to be untrustworthy, such as a failed
// live fetch.
func (cs *ChangeSet) Drop(id graph.Identity) {
	if _, ok := cs.changes[id]; !ok {
		return
	}
	delete(cs.changes, id)
	for i, o := range cs.order {
		if o == id {
			cs.order = append(cs.order[:i], cs.order[i+1:]...)
			break
		}
	}
}

func (cs *ChangeSet) add(c Change) {
	cs.changes[c.ID] = c
	cs.order = append(cs.order, c.ID)
}

// Plan compares the declared graph against prior (state store) and live
// (fresh provider fetch) records and returns the change set.
//
// prior and live are keyed by identity; a missing key means the record does
// not exist there. Planning never calls the provider.
func Plan(declared *graph.Graph, prior, live map[graph.Identity]state.Record, schema provider.Schema) *ChangeSet {
	cs := &ChangeSet{changes: make(map[graph.Identity]Change)}

	for _, node := range declared.Nodes() {
		cs.planNode(node, prior, live, schema)
	}

	// Anything recorded or alive but no longer declared gets deleted.
	var orphans []graph.Identity
	seen := make(map[graph.Identity]struct{})
	for id := range prior {
		if declared.Node(id) == nil {
			orphans = append(orphans, id)
			seen[id] = struct{}{}
		}
	}
	for id := range live {
		if _, dup := seen[id]; dup {
			continue
		}
		if declared.Node(id) == nil {
			orphans = append(orphans, id)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].String() < orphans[j].String()
	})
	for _, id := range orphans {
		before := prior[id].Attrs
		rec, hasPrior := prior[id]
		if liveRec, ok := live[id]; ok {
			before = liveRec.Attrs
			if !hasPrior {
				rec = liveRec
				hasPrior = true
			}
		}
		cs.add(Change{
			ID:       id,
			Op:       OpDelete,
			Before:   before,
			Prior:    rec,
			HasPrior: hasPrior,
		})
	}

	return cs
}

func (cs *ChangeSet) planNode(node *graph.Node, prior, live map[graph.Identity]state.Record, schema provider.Schema) {
	liveRec, hasLive := live[node.ID]
	priorRec, hasPrior := prior[node.ID]

	if !hasLive {
		// Nothing alive, whether or not we once recorded it.
		cs.add(Change{
			ID:       node.ID,
			Op:       OpCreate,
			After:    node.Attrs,
			Prior:    priorRec,
			HasPrior: hasPrior,
		})
		return
	}

	// Immutable-field drift on a field the declaration does not change is
	// a conflict: applying the declaration would mean replacing a resource
	// the user never touched.
	if hasPrior {
		var conflicts []Conflict
		for _, field := range sortedKeys(node.Attrs) {
			stored, inStored := priorRec.Attrs[field]
			liveVal, inLive := liveRec.Attrs[field]
			if !inStored || !inLive || stored == liveVal {
				continue
			}
			if schema.Immutable(node.ID.Kind, field) && node.Attrs[field] == stored {
				conflicts = append(conflicts, Conflict{
					ID:       node.ID,
					Field:    field,
					Stored:   stored,
					Live:     liveVal,
					Declared: node.Attrs[field],
				})
			}
		}
		if len(conflicts) > 0 {
			// conflicted nodes get no operation
			cs.Conflicts = append(cs.Conflicts, conflicts...)
			return
		}
	}

	// Only declared keys are compared: a live attribute with no declared
	// counterpart (a provider-added default, an annotation) is not drift
	// and never triggers an Update on its own.
	var changed, forced []string
	for _, field := range sortedKeys(node.Attrs) {
		if liveRec.Attrs[field] == node.Attrs[field] {
			continue
		}
		changed = append(changed, field)
		if schema.Immutable(node.ID.Kind, field) {
			forced = append(forced, field)
		}
	}

	switch {
	case len(changed) == 0:
		cs.add(Change{
			ID:       node.ID,
			Op:       OpNoOp,
			Before:   liveRec.Attrs,
			After:    node.Attrs,
			Prior:    liveRec,
			HasPrior: true,
		})
	case len(forced) > 0:
		cs.add(Change{
			ID:            node.ID,
			Op:            OpReplace,
			Before:        liveRec.Attrs,
			After:         node.Attrs,
			ChangedFields: changed,
			ForcedBy:      forced,
			Prior:         liveRec,
			HasPrior:      true,
		})
	default:
		cs.add(Change{
			ID:            node.ID,
			Op:            OpUpdate,
			Before:        liveRec.Attrs,
			After:         node.Attrs,
			ChangedFields: changed,
			Prior:         liveRec,
			HasPrior:      true,
		})
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
