package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fwmesh/fwmesh/internal/graph"
)

// ErrNotFound is returned by Lookup when no record exists for an identity.
var ErrNotFound = errors.New("state: record not found")

// Record is the stored last-known live state of one resource.
//
// DependsOn captures the dependency identities at the time the resource was
// applied. It is what allows a later pass to delete resources that are no
// longer declared in the correct reverse order.
type Record struct {
	ID         graph.Identity    `json:"id"`
	ProviderID string            `json:"provider_id"`
	Attrs      map[string]string `json:"attrs"`
	DependsOn  []graph.Identity  `json:"depends_on,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate attributes freely.
func (r Record) Clone() Record {
	out := r
	out.Attrs = make(map[string]string, len(r.Attrs))
	for k, v := range r.Attrs {
		out.Attrs[k] = v
	}
	out.DependsOn = append([]graph.Identity(nil), r.DependsOn...)
	return out
}

// Store is the durable mapping from declared identity to last-known live
// state. Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces the record for rec.ID.
	Save(ctx context.Context, rec Record) error

	// Lookup returns the record for id, or ErrNotFound.
	Lookup(ctx context.Context, id graph.Identity) (Record, error)

	// Remove deletes the record for id. Removing an absent record is not
	// an error.
	Remove(ctx context.Context, id graph.Identity) error

	// List returns all records in an unspecified but stable order.
	List(ctx context.Context) ([]Record, error)

	// Close releases backend resources.
	Close() error
}

// Serialized wraps a Store so that operations on the same identity are
// serialized while distinct identities proceed concurrently.
type Serialized struct {
	inner Store

	mu    sync.Mutex
	locks map[graph.Identity]*sync.Mutex
}

// Serialize wraps store with per-identity locking.
func Serialize(store Store) *Serialized {
	return &Serialized{
		inner: store,
		locks: make(map[graph.Identity]*sync.Mutex),
	}
}

func (s *Serialized) lock(id graph.Identity) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Save implements Store.
func (s *Serialized) Save(ctx context.Context, rec Record) error {
	l := s.lock(rec.ID)
	l.Lock()
	defer l.Unlock()
	return s.inner.Save(ctx, rec)
}

// Lookup implements Store.
func (s *Serialized) Lookup(ctx context.Context, id graph.Identity) (Record, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()
	return s.inner.Lookup(ctx, id)
}

// Remove implements Store.
func (s *Serialized) Remove(ctx context.Context, id graph.Identity) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()
	return s.inner.Remove(ctx, id)
}

// List implements Store. List is not serialized per identity; backends must
// provide a consistent snapshot on their own.
func (s *Serialized) List(ctx context.Context) ([]Record, error) {
	return s.inner.List(ctx)
}

// Close implements Store.
func (s *Serialized) Close() error {
	return s.inner.Close()
}
