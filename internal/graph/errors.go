package graph

import (
	"fmt"
	"strings"
)

// DuplicateError reports a second node declared with an identity already in
// the graph.
type DuplicateError struct {
	ID Identity
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate resource identity %s", e.ID)
}

// DanglingError reports an edge whose endpoint is not present in the graph.
type DanglingError struct {
	From    Identity
	To      Identity
	Missing Identity
}

func (e *DanglingError) Error() string {
	return fmt.Sprintf("dangling reference: %s depends on %s, but %s is not declared", e.From, e.To, e.Missing)
}

// CycleError reports a dependency cycle. Path lists the identities along the
// cycle, ending at the node it started from.
type CycleError struct {
	Path []Identity
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = id.String()
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}
