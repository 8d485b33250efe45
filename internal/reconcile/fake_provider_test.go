package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

// fakeProvider is an in-memory provider with scriptable failures. Every
// Apply call is logged as "<op> <kind>/<name>" in call order.
type fakeProvider struct {
	mu      sync.Mutex
	live    map[graph.Identity]state.Record
	applied []string

	// failures queues errors per identity; each Apply against the
	// identity pops one until the queue is empty.
	failures map[graph.Identity][]error

	fetchFailures map[graph.Identity][]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		live:          make(map[graph.Identity]state.Record),
		failures:      make(map[graph.Identity][]error),
		fetchFailures: make(map[graph.Identity][]error),
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) seed(id graph.Identity, attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[id] = state.Record{ID: id, ProviderID: "fake-" + id.Name, Attrs: attrs}
}

func (f *fakeProvider) failWith(id graph.Identity, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = append(f.failures[id], errs...)
}

func (f *fakeProvider) fetchFailWith(id graph.Identity, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchFailures[id] = append(f.fetchFailures[id], errs...)
}

func (f *fakeProvider) FetchLive(_ context.Context, id graph.Identity) (state.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.fetchFailures[id]; len(queue) > 0 {
		err := queue[0]
		f.fetchFailures[id] = queue[1:]
		return state.Record{}, err
	}
	rec, ok := f.live[id]
	if !ok {
		return state.Record{}, provider.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeProvider) Apply(_ context.Context, op provider.Operation) (state.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := op.ID()
	f.applied = append(f.applied, fmt.Sprintf("%s %s", op.Op, id))

	if queue := f.failures[id]; len(queue) > 0 {
		err := queue[0]
		f.failures[id] = queue[1:]
		return state.Record{}, err
	}

	switch op.Op {
	case provider.OpCreate, provider.OpUpdate:
		rec := state.Record{
			ID:         id,
			ProviderID: "fake-" + id.Name,
			Attrs:      op.Node.Attrs,
		}
		f.live[id] = rec
		return rec.Clone(), nil
	case provider.OpDelete:
		if _, ok := f.live[id]; !ok {
			return state.Record{}, fmt.Errorf("delete %s: %w", id, provider.ErrNotFound)
		}
		delete(f.live, id)
		return state.Record{}, nil
	}
	return state.Record{}, fmt.Errorf("unknown op %q", op.Op)
}

// calls returns a snapshot of the apply log.
func (f *fakeProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

// callIndex returns the position of the first matching log entry, or -1.
func (f *fakeProvider) callIndex(entry string) int {
	for i, c := range f.calls() {
		if c == entry {
			return i
		}
	}
	return -1
}

func retryableErr(id graph.Identity) error {
	return &provider.Error{ID: id, Op: "apply", Retryable: true, Err: fmt.Errorf("rate limited")}
}

func fatalErr(id graph.Identity) error {
	return &provider.Error{ID: id, Op: "apply", Retryable: false, Err: fmt.Errorf("invalid input")}
}
