package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fwmesh/fwmesh/internal/diff"
	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/metrics"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
	"github.com/fwmesh/fwmesh/internal/util/retry"
)

// Reconciler drives passes against one provider and one state store.
type Reconciler struct {
	provider provider.Provider
	store    state.Store
	schema   provider.Schema
	log      *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

// New creates a reconciler. The store is wrapped so writes to the same
// identity are serialized. A nil logger or metrics set is replaced with a
// no-op one.
func New(p provider.Provider, store state.Store, schema provider.Schema, log *zap.Logger, m *metrics.Metrics, opts Options) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if schema == nil {
		schema = provider.DefaultSchema()
	}
	return &Reconciler{
		provider: p,
		store:    state.Serialize(store),
		schema:   schema,
		log:      log,
		metrics:  m,
		opts:     opts.withDefaults(),
	}
}

// Plan refreshes live state and computes the change set without mutating
// anything. It is the dry-run entry point; a plan over nodes whose live
// state could not be fetched would be misleading, so fetch failures are an
// error here.
func (r *Reconciler) Plan(ctx context.Context, g *graph.Graph) (*diff.ChangeSet, error) {
	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	prior, live, failed, err := r.refresh(ctx, g)
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, id := range sortedFailureIDs(failed) {
			errs = append(errs, fmt.Errorf("failed to fetch live state for %s: %w", id, failed[id].err))
		}
		return nil, errors.Join(errs...)
	}
	return diff.Plan(g, prior, live, r.schema), nil
}

// Apply runs a full pass: plan, then execute the change set in dependency
// order. The returned result always carries a pass ID and outcome; Err is
// set only for aborted passes.
func (r *Reconciler) Apply(ctx context.Context, g *graph.Graph) *Result {
	res := &Result{PassID: uuid.NewString()}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		r.metrics.PassDuration.Observe(res.Duration.Seconds())
		r.observeStatuses(g)
	}()

	log := r.log.With(zap.String("pass", res.PassID))
	log.Info("pass starting", zap.Int("nodes", g.Len()))

	if _, err := g.TopologicalOrder(); err != nil {
		res.Outcome = OutcomeAbortedByCycle
		res.Err = err
		log.Error("pass aborted", zap.Error(err))
		return res
	}

	cs, fetchFailed, err := r.planChanges(ctx, g)
	if err != nil {
		res.Outcome = OutcomePartiallyFailed
		res.Err = fmt.Errorf("failed to refresh live state: %w", err)
		log.Error("pass failed before applying", zap.Error(err))
		return res
	}
	res.Conflicts = cs.Conflicts

	// A node whose live fetch failed is Failed; its dependents are blocked.
	// Everything else proceeds.
	r.failFetches(g, cs, fetchFailed, res, log)

	for _, c := range cs.All() {
		node := g.Node(c.ID)
		if c.Op == diff.OpNoOp {
			res.NoOp = append(res.NoOp, c.ID)
			if node != nil {
				node.Status = graph.StatusApplied
			}
			continue
		}
		if node != nil {
			node.Status = graph.StatusPlanned
		}
	}

	exec := &executor{
		provider: r.provider,
		store:    r.store,
		log:      log,
		metrics:  r.metrics,
		opts:     r.opts,
	}
	exec.execute(ctx, g, cs, res)

	if len(res.Failed) == 0 && len(res.Blocked) == 0 && len(res.Conflicts) == 0 {
		res.Outcome = OutcomeCompleted
	} else {
		res.Outcome = OutcomePartiallyFailed
	}
	log.Info("pass finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("applied", len(res.Applied)),
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("noop", len(res.NoOp)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("blocked", len(res.Blocked)),
		zap.Duration("duration", time.Since(start)))
	return res
}

func (r *Reconciler) planChanges(ctx context.Context, g *graph.Graph) (*diff.ChangeSet, map[graph.Identity]fetchFailure, error) {
	prior, live, failed, err := r.refresh(ctx, g)
	if err != nil {
		return nil, nil, err
	}
	return diff.Plan(g, prior, live, r.schema), failed, nil
}

// failFetches records each failed fetch as a node failure, drops the node's
// planned change (it was computed against unknown live state), and blocks
// its transitive dependents' pending changes.
func (r *Reconciler) failFetches(g *graph.Graph, cs *diff.ChangeSet, failed map[graph.Identity]fetchFailure, res *Result, log *zap.Logger) {
	if len(failed) == 0 {
		return
	}
	blocked := make(map[graph.Identity]struct{})
	for _, id := range sortedFailureIDs(failed) {
		f := failed[id]
		cs.Drop(id)
		if node := g.Node(id); node != nil {
			node.Status = graph.StatusFailed
		}
		res.Failed = append(res.Failed, NodeFailure{
			ID:       id,
			Attempts: f.attempts,
			Err:      fmt.Errorf("fetch %s: %w", id, f.err),
		})
		log.Error("live fetch failed",
			zap.String("node", id.String()),
			zap.Int("attempts", f.attempts),
			zap.Error(f.err))

		queue := []graph.Identity{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, dep := range g.Dependents(cur) {
				if _, done := blocked[dep]; done {
					continue
				}
				if _, alsoFailed := failed[dep]; alsoFailed {
					continue
				}
				blocked[dep] = struct{}{}
				queue = append(queue, dep)
				if c, ok := cs.Get(dep); ok && c.Op != diff.OpNoOp {
					cs.Drop(dep)
					res.Blocked = append(res.Blocked, BlockedNode{
						ID:     dep,
						On:     id,
						Reason: fmt.Sprintf("ordered after failed node %s", id),
					})
				}
			}
		}
	}
}

func sortedFailureIDs(failed map[graph.Identity]fetchFailure) []graph.Identity {
	ids := make([]graph.Identity, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// fetchFailure is a live fetch that exhausted its retries or hit a fatal
// provider error.
type fetchFailure struct {
	attempts int
	err      error
}

// refresh loads the state store's records and fetches a fresh live snapshot
// for every declared or previously recorded identity. Fetches run in
// parallel, bounded by the pass parallelism, and transient failures retry.
//
// Fetch failures are returned per identity so the caller can fail just
// those nodes; the error return is reserved for state store failures.
func (r *Reconciler) refresh(ctx context.Context, g *graph.Graph) (prior, live map[graph.Identity]state.Record, failed map[graph.Identity]fetchFailure, err error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load state store: %w", err)
	}
	prior = make(map[graph.Identity]state.Record, len(records))
	for _, rec := range records {
		prior[rec.ID] = rec
	}

	ids := make([]graph.Identity, 0, g.Len()+len(prior))
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	for id := range prior {
		if g.Node(id) == nil {
			ids = append(ids, id)
		}
	}

	live = make(map[graph.Identity]state.Record, len(ids))
	failed = make(map[graph.Identity]fetchFailure)
	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(r.opts.Parallelism)

	for _, id := range ids {
		eg.Go(func() error {
			var rec state.Record
			found := false
			attempts := 0
			ferr := retry.Do(ctx, func() error {
				attempts++
				cctx, cancel := context.WithTimeout(ctx, r.opts.ApplyTimeout)
				defer cancel()
				var perr error
				rec, perr = r.provider.FetchLive(cctx, id)
				switch {
				case perr == nil:
					found = true
					return nil
				case provider.IsNotFound(perr):
					return nil
				case provider.IsRetryable(perr):
					return perr
				default:
					return retry.Fatal(perr)
				}
			},
				retry.WithAttempts(r.opts.Attempts),
				retry.WithInitialDelay(r.opts.RetryInitialDelay),
				retry.WithMaxDelay(r.opts.RetryMaxDelay),
			)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ferr != nil:
				failed[id] = fetchFailure{attempts: attempts, err: ferr}
			case found:
				live[id] = rec
			}
			return nil
		})
	}
	_ = eg.Wait()
	return prior, live, failed, nil
}

func (r *Reconciler) observeStatuses(g *graph.Graph) {
	for _, n := range g.Nodes() {
		r.metrics.NodesTotal.WithLabelValues(n.Status.String()).Inc()
	}
}
