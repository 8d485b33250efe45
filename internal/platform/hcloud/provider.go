package hcloud

import (
	"context"
	"fmt"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

// FetchLive implements provider.Provider.
func (p *Provider) FetchLive(ctx context.Context, id graph.Identity) (state.Record, error) {
	switch id.Kind {
	case graph.KindNetwork:
		return p.fetchNetwork(ctx, id)
	case graph.KindSubnet:
		return p.fetchSubnet(ctx, id)
	case graph.KindRoute:
		return p.fetchRoute(ctx, id)
	case graph.KindFirewallRule:
		return p.fetchFirewallRule(ctx, id)
	case graph.KindInstanceGroup:
		return p.fetchInstanceGroup(ctx, id)
	case graph.KindLoadBalancer:
		return p.fetchLoadBalancer(ctx, id)
	default:
		return state.Record{}, unsupported(id, "fetch")
	}
}

// Apply implements provider.Provider.
func (p *Provider) Apply(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	switch id.Kind {
	case graph.KindNetwork:
		return p.applyNetwork(ctx, op)
	case graph.KindSubnet:
		return p.applySubnet(ctx, op)
	case graph.KindRoute:
		return p.applyRoute(ctx, op)
	case graph.KindFirewallRule:
		return p.applyFirewallRule(ctx, op)
	case graph.KindInstanceGroup:
		return p.applyInstanceGroup(ctx, op)
	case graph.KindLoadBalancer:
		return p.applyLoadBalancer(ctx, op)
	default:
		return state.Record{}, unsupported(id, string(op.Op))
	}
}

func unsupported(id graph.Identity, op string) error {
	return &provider.Error{
		ID:  id,
		Op:  op,
		Err: fmt.Errorf("%w: %s", ErrUnsupported, id.Kind),
	}
}
