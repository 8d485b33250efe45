package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fwmesh/fwmesh/internal/config"
	"github.com/fwmesh/fwmesh/internal/reconcile"
)

// Apply runs one reconciliation pass against the declared topology.
func Apply(ctx context.Context, configPath string, verbose bool) error {
	s, err := buildStack(ctx, configPath, verbose)
	if err != nil {
		reportAborted(err)
		return err
	}
	defer s.close()

	res := s.rec.Apply(ctx, s.graph)
	printResult(res)

	if res.Succeeded() {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("pass %s finished %s: %d failed, %d blocked, %d conflicts",
		res.PassID, res.Outcome, len(res.Failed), len(res.Blocked), len(res.Conflicts))
}

// reportAborted prints a pass result for topology validation failures, so
// rejected configurations surface with the same outcome vocabulary as every
// other pass.
func reportAborted(err error) {
	var ce *config.Error
	if errors.As(err, &ce) {
		res := reconcile.Aborted(reconcile.OutcomeAbortedByConfig, err)
		fmt.Fprintf(stdout, "Pass %s: %s\n", res.PassID, res.Outcome)
	}
}

func printResult(res *reconcile.Result) {
	fmt.Fprintf(stdout, "Pass %s: %s (%d applied, %d deleted, %d unchanged) in %s\n",
		res.PassID, res.Outcome, len(res.Applied), len(res.Deleted), len(res.NoOp),
		res.Duration.Round(time.Millisecond))

	for _, f := range res.Failed {
		fmt.Fprintf(stdout, "  failed:  %s after %d attempt(s): %v\n", f.ID, f.Attempts, f.Err)
	}
	for _, b := range res.Blocked {
		fmt.Fprintf(stdout, "  blocked: %s (%s)\n", b.ID, b.Reason)
	}
	for _, c := range res.Conflicts {
		fmt.Fprintf(stdout, "  conflict: %s\n", c)
	}
}
