package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/state"
)

// ErrNotFound is returned by FetchLive when the resource does not exist.
var ErrNotFound = errors.New("provider: resource not found")

// Op is a mutation kind submitted to a provider. Replace never reaches the
// provider; the executor decomposes it into Delete followed by Create.
type Op string

// Provider operations.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Operation is a single mutation against one resource.
type Operation struct {
	Op Op

	// Node carries the declared attributes. Nil for Delete.
	Node *graph.Node

	// Prior is the last-known live record. Zero for Create.
	Prior state.Record
}

// ID returns the identity the operation targets.
func (o Operation) ID() graph.Identity {
	if o.Node != nil {
		return o.Node.ID
	}
	return o.Prior.ID
}

// Provider is the adapter to one cloud provider/region.
//
// FetchLive returns the current live state of a resource or ErrNotFound.
// Apply executes one operation and returns the resulting live record;
// for Delete the returned record is ignored. Both calls may block on
// network I/O and must honor ctx.
type Provider interface {
	Name() string
	FetchLive(ctx context.Context, id graph.Identity) (state.Record, error)
	Apply(ctx context.Context, op Operation) (state.Record, error)
}

// Error wraps a provider failure with retry classification.
type Error struct {
	ID        graph.Identity
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("provider %s failed for %s (%s): %v", e.Op, e.ID, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// IsNotFound reports whether err indicates a missing live resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
