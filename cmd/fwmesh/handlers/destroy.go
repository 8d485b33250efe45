package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwmesh/fwmesh/internal/graph"
)

// Destroy deletes every resource recorded in the state store by applying an
// empty declared graph: everything becomes an orphan and is deleted in
// reverse dependency order.
func Destroy(ctx context.Context, configPath string, force, verbose bool) error {
	if !force {
		return errors.New("destroy deletes every managed resource; re-run with --force to confirm")
	}

	s, err := buildStack(ctx, configPath, verbose)
	if err != nil {
		reportAborted(err)
		return err
	}
	defer s.close()

	res := s.rec.Apply(ctx, graph.New())
	printResult(res)

	if res.Succeeded() {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("destroy pass %s finished %s: %d failed, %d blocked",
		res.PassID, res.Outcome, len(res.Failed), len(res.Blocked))
}
