package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/fwmesh/fwmesh/internal/diff"
	"github.com/fwmesh/fwmesh/internal/graph"
)

// Outcome is the overall result of a pass.
type Outcome string

// Pass outcomes.
const (
	// OutcomeCompleted means every scheduled node reached Applied or NoOp.
	OutcomeCompleted Outcome = "completed"

	// OutcomePartiallyFailed means at least one node failed or was blocked.
	OutcomePartiallyFailed Outcome = "partially-failed"

	// OutcomeAbortedByCycle means the declared graph has a dependency
	// cycle; nothing was applied.
	OutcomeAbortedByCycle Outcome = "aborted-by-cycle"

	// OutcomeAbortedByConfig means the declared configuration was invalid;
	// nothing was applied.
	OutcomeAbortedByConfig Outcome = "aborted-by-config"
)

// NodeFailure describes a node whose apply exhausted its retries or hit a
// fatal provider error.
type NodeFailure struct {
	ID       graph.Identity
	Attempts int
	Err      error
}

// BlockedNode describes a node that was never dispatched because a node it
// is ordered after failed, or because the pass was cancelled.
type BlockedNode struct {
	ID graph.Identity

	// On is the failed node this one is ordered after; zero when the pass
	// was cancelled instead.
	On graph.Identity

	Reason string
}

// Result is the per-pass outcome surfaced to the caller.
type Result struct {
	PassID  string
	Outcome Outcome

	Applied []graph.Identity // created, updated, or replaced
	Deleted []graph.Identity
	NoOp    []graph.Identity
	Failed  []NodeFailure
	Blocked []BlockedNode

	// Conflicts carries drift the diff engine refused to resolve.
	Conflicts []diff.Conflict

	// Err is set for aborted outcomes and carries the cycle or config error.
	Err error

	Duration time.Duration
}

// Succeeded reports whether every scheduled node completed.
func (r *Result) Succeeded() bool {
	return r.Outcome == OutcomeCompleted && len(r.Conflicts) == 0
}

// Aborted builds the result for a pass that never reached planning, such as
// one rejected by topology validation.
func Aborted(outcome Outcome, err error) *Result {
	return &Result{PassID: uuid.NewString(), Outcome: outcome, Err: err}
}
