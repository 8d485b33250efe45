package handlers

import (
	"context"
	"fmt"

	"github.com/fwmesh/fwmesh/internal/plan"
)

// Plan computes the change set against the live cloud state and prints it
// without applying anything.
func Plan(ctx context.Context, configPath string, jsonOut, verbose bool) error {
	s, err := buildStack(ctx, configPath, verbose)
	if err != nil {
		return err
	}
	defer s.close()

	cs, err := s.rec.Plan(ctx, s.graph)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	if jsonOut {
		return plan.RenderJSON(stdout, cs)
	}
	return plan.Render(stdout, cs)
}
