package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fwmesh/fwmesh/internal/config"
	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/state"
)

// State lists the records in the state store. It needs no provider
// credentials, only the topology file to locate the backend.
func State(ctx context.Context, configPath string) error {
	store, err := openStateStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "State store is empty.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tPROVIDER ID\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, rec.ProviderID, rec.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// StateShow prints one record, addressed as "kind/name", as JSON.
func StateShow(ctx context.Context, configPath, ref string) error {
	id, err := parseIdentity(ref)
	if err != nil {
		return err
	}
	store, err := openStateStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", id, err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// StateRemove drops a record from the state store without touching the live
// resource. The next apply will treat the resource as unmanaged.
func StateRemove(ctx context.Context, configPath, ref string) error {
	id, err := parseIdentity(ref)
	if err != nil {
		return err
	}
	store, err := openStateStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Lookup(ctx, id); err != nil {
		return fmt.Errorf("failed to look up %s: %w", id, err)
	}
	if err := store.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %s from the state store.\n", id)
	return nil
}

func openStateStore(ctx context.Context, configPath string) (state.Store, error) {
	if configPath == "" {
		configPath = config.DefaultFile
	}
	topo, err := loadTopology(configPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, topo.State)
	if err != nil {
		return nil, fmt.Errorf("failed to open state backend %q: %w", topo.State.Backend, err)
	}
	return store, nil
}

func parseIdentity(ref string) (graph.Identity, error) {
	kind, name, ok := strings.Cut(ref, "/")
	if !ok || name == "" {
		return graph.Identity{}, fmt.Errorf("invalid resource reference %q, expected kind/name", ref)
	}
	for _, k := range graph.Kinds() {
		if graph.Kind(kind) == k {
			return graph.Identity{Kind: k, Name: name}, nil
		}
	}
	return graph.Identity{}, fmt.Errorf("unknown resource kind %q", kind)
}
