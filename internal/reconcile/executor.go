package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fwmesh/fwmesh/internal/diff"
	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/metrics"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
	"github.com/fwmesh/fwmesh/internal/util/retry"
)

// Options configures a pass.
type Options struct {
	// Parallelism bounds concurrent provider applies.
	Parallelism int

	// Attempts bounds provider tries per call, including the first.
	Attempts int

	// RetryInitialDelay and RetryMaxDelay shape the backoff between tries.
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// ApplyTimeout bounds a single provider call. The timeout context is
	// detached from the pass context, so cancelling a pass lets in-flight
	// calls finish or time out on their own.
	ApplyTimeout time.Duration
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.RetryInitialDelay <= 0 {
		o.RetryInitialDelay = 1 * time.Second
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 30 * time.Second
	}
	if o.ApplyTimeout <= 0 {
		o.ApplyTimeout = 2 * time.Minute
	}
	return o
}

// executor applies one change set in dependency order.
type executor struct {
	provider provider.Provider
	store    state.Store
	log      *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

// task is one schedulable change with its ordering constraints.
type task struct {
	change diff.Change
	index  int // position in the change set, for deterministic dispatch

	preds map[graph.Identity]struct{}
	succs []graph.Identity
}

type taskResult struct {
	id       graph.Identity
	attempts int
	err      error
}

// execute runs all pending changes and fills the applied/deleted/failed/
// blocked fields of res. The declared graph provides dependency edges for
// creates and updates; deletes are ordered by the DependsOn recorded in
// their prior state.
func (e *executor) execute(ctx context.Context, g *graph.Graph, cs *diff.ChangeSet, res *Result) {
	tasks, order := buildTasks(g, cs)
	total := len(order)
	if total == 0 {
		return
	}

	indegree := make(map[graph.Identity]int, total)
	var ready []graph.Identity
	for _, id := range order {
		indegree[id] = len(tasks[id].preds)
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	results := make(chan taskResult)
	blocked := make(map[graph.Identity]BlockedNode)
	finished := make(map[graph.Identity]struct{})
	inflight := 0
	done := 0
	cancelled := false

	for done < total {
		if !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
				e.log.Warn("pass cancelled, draining in-flight applies",
					zap.Int("inflight", inflight))
			default:
			}
		}

		for !cancelled && inflight < e.opts.Parallelism && len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			t := tasks[id]
			inflight++
			e.setStatus(g, id, graph.StatusApplying)
			go e.runTask(ctx, g, t, results)
		}

		if inflight == 0 {
			// Nothing running and nothing dispatchable: the rest are
			// unreachable, either cancelled or waiting on failed preds
			// that were already marked blocked.
			break
		}

		r := <-results
		inflight--
		done++
		finished[r.id] = struct{}{}
		t := tasks[r.id]

		if r.err != nil {
			e.setStatus(g, r.id, graph.StatusFailed)
			res.Failed = append(res.Failed, NodeFailure{ID: r.id, Attempts: r.attempts, Err: r.err})
			e.log.Error("node failed",
				zap.String("node", r.id.String()),
				zap.Int("attempts", r.attempts),
				zap.Error(r.err))
			done += e.blockDownstream(tasks, r.id, blocked, finished)
			continue
		}

		if t.change.Op == diff.OpDelete {
			res.Deleted = append(res.Deleted, r.id)
		} else {
			res.Applied = append(res.Applied, r.id)
		}
		e.setStatus(g, r.id, graph.StatusApplied)

		for _, succ := range t.succs {
			if _, isBlocked := blocked[succ]; isBlocked {
				continue
			}
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = insertByIndex(ready, succ, tasks)
			}
		}
	}

	// Anything not finished and not already blocked was starved by
	// cancellation.
	for _, id := range order {
		if _, ok := finished[id]; ok {
			continue
		}
		if _, ok := blocked[id]; ok {
			continue
		}
		blocked[id] = BlockedNode{ID: id, Reason: "pass cancelled"}
	}
	for _, id := range order {
		if b, ok := blocked[id]; ok {
			res.Blocked = append(res.Blocked, b)
		}
	}
}

// blockDownstream marks every task transitively ordered after failedID as
// blocked and returns the number of newly blocked tasks.
func (e *executor) blockDownstream(tasks map[graph.Identity]*task, failedID graph.Identity, blocked map[graph.Identity]BlockedNode, finished map[graph.Identity]struct{}) int {
	count := 0
	queue := []graph.Identity{failedID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range tasks[id].succs {
			if _, ok := blocked[succ]; ok {
				continue
			}
			if _, ok := finished[succ]; ok {
				continue
			}
			blocked[succ] = BlockedNode{
				ID:     succ,
				On:     failedID,
				Reason: fmt.Sprintf("ordered after failed node %s", failedID),
			}
			count++
			queue = append(queue, succ)
		}
	}
	return count
}

// runTask applies one change, retrying retryable provider errors with
// exponential backoff. Replace is delete-then-create; both phases retry
// independently so an already-deleted resource is never deleted twice.
func (e *executor) runTask(ctx context.Context, g *graph.Graph, t *task, results chan<- taskResult) {
	id := t.change.ID
	attempts := 0

	e.log.Info("applying",
		zap.String("node", id.String()),
		zap.String("op", string(t.change.Op)))

	var err error
	switch t.change.Op {
	case diff.OpCreate:
		err = e.applyAndRecord(ctx, g, t, provider.OpCreate, &attempts)
	case diff.OpUpdate:
		err = e.applyAndRecord(ctx, g, t, provider.OpUpdate, &attempts)
	case diff.OpReplace:
		if err = e.deleteAndForget(ctx, t, &attempts); err == nil {
			err = e.applyAndRecord(ctx, g, t, provider.OpCreate, &attempts)
		}
	case diff.OpDelete:
		err = e.deleteAndForget(ctx, t, &attempts)
	}

	results <- taskResult{id: id, attempts: attempts, err: err}
}

// applyAndRecord performs a create or update and saves the resulting live
// record to the state store.
func (e *executor) applyAndRecord(ctx context.Context, g *graph.Graph, t *task, op provider.Op, attempts *int) error {
	node := g.Node(t.change.ID)
	pop := provider.Operation{Op: op, Node: node}
	if op == provider.OpUpdate && t.change.HasPrior {
		pop.Prior = t.change.Prior
	}

	var rec state.Record
	err := e.callProvider(ctx, string(op), t.change.ID, attempts, func(cctx context.Context) error {
		var perr error
		rec, perr = e.provider.Apply(cctx, pop)
		return perr
	})
	if err != nil {
		return err
	}

	rec.ID = t.change.ID
	if len(rec.Attrs) == 0 {
		rec.Attrs = node.Attrs
	}
	rec.DependsOn = g.Dependencies(t.change.ID)
	rec.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("applied %s but failed to record state: %w", t.change.ID, err)
	}
	return nil
}

// deleteAndForget deletes the live resource and removes its state record.
// A provider NotFound is treated as success: the resource is already gone.
func (e *executor) deleteAndForget(ctx context.Context, t *task, attempts *int) error {
	pop := provider.Operation{Op: provider.OpDelete, Prior: t.change.Prior}
	if pop.Prior.ID == (graph.Identity{}) {
		pop.Prior.ID = t.change.ID
	}

	err := e.callProvider(ctx, string(provider.OpDelete), t.change.ID, attempts, func(cctx context.Context) error {
		_, perr := e.provider.Apply(cctx, pop)
		if provider.IsNotFound(perr) {
			return nil
		}
		return perr
	})
	if err != nil {
		return err
	}

	if err := e.store.Remove(ctx, t.change.ID); err != nil {
		return fmt.Errorf("deleted %s but failed to remove state: %w", t.change.ID, err)
	}
	return nil
}

// callProvider runs one provider call under the per-call timeout with
// bounded exponential backoff. The timeout context is detached from the
// pass context; backoff waits still honor pass cancellation.
func (e *executor) callProvider(ctx context.Context, op string, id graph.Identity, attempts *int, call func(context.Context) error) error {
	err := retry.Do(ctx, func() error {
		*attempts++
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ApplyTimeout)
		defer cancel()

		perr := call(cctx)
		if perr == nil {
			e.metrics.Applies.WithLabelValues(op, "success").Inc()
			return nil
		}
		e.metrics.Applies.WithLabelValues(op, "error").Inc()
		if provider.IsRetryable(perr) {
			e.metrics.Retries.Inc()
			return perr
		}
		return retry.Fatal(perr)
	},
		retry.WithAttempts(e.opts.Attempts),
		retry.WithInitialDelay(e.opts.RetryInitialDelay),
		retry.WithMaxDelay(e.opts.RetryMaxDelay),
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

func (e *executor) setStatus(g *graph.Graph, id graph.Identity, s graph.Status) {
	if node := g.Node(id); node != nil {
		node.Status = s
	}
}

// buildTasks derives the scheduling constraints for all pending changes.
//
// Creates, updates, and replaces wait for their declared dependencies.
// Deletes wait for the deletes of resources that depended on them, and a
// replace of a still-declared dependency waits for deletes of its former
// dependents.
func buildTasks(g *graph.Graph, cs *diff.ChangeSet) (map[graph.Identity]*task, []graph.Identity) {
	pending := cs.Pending()
	tasks := make(map[graph.Identity]*task, len(pending))
	order := make([]graph.Identity, 0, len(pending))

	for i, c := range pending {
		tasks[c.ID] = &task{change: c, index: i, preds: make(map[graph.Identity]struct{})}
		order = append(order, c.ID)
	}

	addEdge := func(first, then graph.Identity) {
		if _, ok := tasks[then].preds[first]; ok {
			return
		}
		tasks[then].preds[first] = struct{}{}
		tasks[first].succs = append(tasks[first].succs, then)
	}

	for _, c := range pending {
		switch c.Op {
		case diff.OpCreate, diff.OpUpdate, diff.OpReplace:
			for _, dep := range g.Dependencies(c.ID) {
				if _, ok := tasks[dep]; ok {
					addEdge(dep, c.ID)
				}
			}
		case diff.OpDelete:
			// This node's former dependencies must outlive it: their
			// delete or replace runs only after this delete finishes.
			for _, dep := range c.Prior.DependsOn {
				t, ok := tasks[dep]
				if !ok {
					continue
				}
				if t.change.Op == diff.OpDelete || t.change.Op == diff.OpReplace {
					addEdge(c.ID, dep)
				}
			}
		}
	}

	// succs in deterministic order
	for _, t := range tasks {
		sort.Slice(t.succs, func(i, j int) bool {
			return tasks[t.succs[i]].index < tasks[t.succs[j]].index
		})
	}
	return tasks, order
}

func insertByIndex(ready []graph.Identity, id graph.Identity, tasks map[graph.Identity]*task) []graph.Identity {
	i := sort.Search(len(ready), func(i int) bool {
		return tasks[ready[i]].index > tasks[id].index
	})
	ready = append(ready, graph.Identity{})
	copy(ready[i+1:], ready[i:])
	ready[i] = id
	return ready
}
