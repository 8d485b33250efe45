// Package reconcile drives reconciliation passes: refresh live state, diff
// it against the declared topology, and apply the resulting change set in
// dependency order.
//
// The executor runs non-NoOp changes on a bounded worker pool. A node is
// dispatched only once every scheduling predecessor has finished: creates
// and updates wait for their dependencies, deletes wait for their
// dependents. Failures stop the failed node's downstream subtree while
// independent branches run to completion.
package reconcile
