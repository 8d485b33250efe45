// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic and can be tested independently of the
// CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/fwmesh/fwmesh/internal/config"
	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/metrics"
	"github.com/fwmesh/fwmesh/internal/platform/hcloud"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/reconcile"
	"github.com/fwmesh/fwmesh/internal/state"
)

// Factory function variables - can be replaced in tests for dependency
// injection.
var (
	// loadTopology loads and validates the topology file.
	loadTopology = config.LoadFile

	// newProvider creates the cloud provider adapter.
	newProvider = func(token string) provider.Provider {
		return hcloud.New(token)
	}

	// openStore opens the configured state backend.
	openStore = func(ctx context.Context, cfg config.StateConfig) (state.Store, error) {
		switch cfg.Backend {
		case "s3":
			return state.OpenS3(ctx, state.S3Options{
				Endpoint:  cfg.Endpoint,
				Region:    cfg.Region,
				Bucket:    cfg.Bucket,
				Prefix:    cfg.Prefix,
				AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			})
		default:
			return state.OpenSQLite(cfg.Path)
		}
	}

	// stdout is the destination for user-facing output.
	stdout io.Writer = os.Stdout
)

// stack bundles everything a reconciling command needs.
type stack struct {
	topo  *config.Topology
	graph *graph.Graph
	rec   *reconcile.Reconciler
	store state.Store
	log   *zap.Logger
}

func (s *stack) close() {
	_ = s.store.Close()
	_ = s.log.Sync()
}

// buildStack loads the topology, opens the state backend, and wires the
// reconciler against the real provider.
func buildStack(ctx context.Context, configPath string, verbose bool) (*stack, error) {
	if configPath == "" {
		configPath = config.DefaultFile
	}
	topo, err := loadTopology(configPath)
	if err != nil {
		return nil, err
	}
	g, err := topo.BuildGraph()
	if err != nil {
		return nil, err
	}

	token := os.Getenv("HCLOUD_TOKEN")
	if token == "" {
		return nil, errors.New("HCLOUD_TOKEN environment variable is required")
	}

	store, err := openStore(ctx, topo.State)
	if err != nil {
		return nil, fmt.Errorf("failed to open state backend %q: %w", topo.State.Backend, err)
	}

	log := newLogger(verbose)
	rec := reconcile.New(newProvider(token), store, provider.DefaultSchema(), log, metrics.New(nil), reconcile.Options{
		Parallelism:  topo.Settings.Parallelism,
		Attempts:     topo.Settings.Attempts,
		ApplyTimeout: topo.Settings.ApplyTimeout,
	})

	return &stack{topo: topo, graph: g, rec: rec, store: store, log: log}, nil
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return log
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
