package hcloud

import (
	"context"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

func netNode(name string) *graph.Node {
	return &graph.Node{
		ID:    graph.Identity{Kind: graph.KindNetwork, Name: name},
		Attrs: map[string]string{"ip_range": "10.0.0.0/16", "zone": "eu-central"},
	}
}

func TestNetworkLifecycle(t *testing.T) {
	p, networks, _, _, _ := newFakeProvider()
	ctx := context.Background()
	node := netNode("trust")

	rec, err := p.Apply(ctx, provider.Operation{Op: provider.OpCreate, Node: node})
	require.NoError(t, err)
	assert.Equal(t, "1", rec.ProviderID)
	assert.Equal(t, "10.0.0.0/16", rec.Attrs["ip_range"])
	assert.Equal(t, "eu-central", rec.Attrs["zone"])

	live, err := p.FetchLive(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Attrs, live.Attrs)

	_, err = p.Apply(ctx, provider.Operation{Op: provider.OpDelete, Prior: rec})
	require.NoError(t, err)
	assert.Empty(t, networks.items)

	_, err = p.FetchLive(ctx, node.ID)
	assert.True(t, provider.IsNotFound(err))
}

func TestSubnetLifecycle(t *testing.T) {
	p, networks, _, _, _ := newFakeProvider()
	ctx := context.Background()

	_, err := p.Apply(ctx, provider.Operation{Op: provider.OpCreate, Node: netNode("trust")})
	require.NoError(t, err)

	subID := graph.Identity{Kind: graph.KindSubnet, Name: "trust-a"}
	attrs := map[string]string{"network": "trust", "ip_range": "10.0.1.0/24", "zone": "eu-central"}
	rec, err := p.Apply(ctx, provider.Operation{
		Op:   provider.OpCreate,
		Node: &graph.Node{ID: subID, Attrs: attrs},
	})
	require.NoError(t, err)
	assert.Equal(t, "1/10.0.1.0/24", rec.ProviderID)

	// bookkeeping label on the parent network
	assert.Equal(t, "10.0.1.0-24", networks.items["trust"].Labels[subnetLabelPrefix+"trust-a"])

	live, err := p.FetchLive(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, attrs, live.Attrs)

	_, err = p.Apply(ctx, provider.Operation{Op: provider.OpDelete, Prior: rec})
	require.NoError(t, err)
	assert.Empty(t, networks.items["trust"].Subnets)
	assert.NotContains(t, networks.items["trust"].Labels, subnetLabelPrefix+"trust-a")

	_, err = p.FetchLive(ctx, subID)
	assert.True(t, provider.IsNotFound(err))
}

func TestRouteUpdateSwapsGateway(t *testing.T) {
	p, networks, _, _, _ := newFakeProvider()
	ctx := context.Background()

	_, err := p.Apply(ctx, provider.Operation{Op: provider.OpCreate, Node: netNode("trust")})
	require.NoError(t, err)

	routeID := graph.Identity{Kind: graph.KindRoute, Name: "default-out"}
	prior, err := p.Apply(ctx, provider.Operation{
		Op: provider.OpCreate,
		Node: &graph.Node{ID: routeID, Attrs: map[string]string{
			"network": "trust", "destination": "0.0.0.0/0", "gateway": "10.0.0.1",
		}},
	})
	require.NoError(t, err)

	_, err = p.Apply(ctx, provider.Operation{
		Op: provider.OpUpdate,
		Node: &graph.Node{ID: routeID, Attrs: map[string]string{
			"network": "trust", "destination": "0.0.0.0/0", "gateway": "10.0.0.2",
		}},
		Prior: prior,
	})
	require.NoError(t, err)

	routes := networks.items["trust"].Routes
	require.Len(t, routes, 1)
	assert.Equal(t, "10.0.0.2", routes[0].Gateway.String())

	live, err := p.FetchLive(ctx, routeID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", live.Attrs["gateway"])
}

func TestFirewallRuleRoundTrip(t *testing.T) {
	p, _, firewalls, _, _ := newFakeProvider()
	ctx := context.Background()

	id := graph.Identity{Kind: graph.KindFirewallRule, Name: "allow-https"}
	attrs := map[string]string{
		"network":       "trust",
		"direction":     "in",
		"protocol":      "tcp",
		"port":          "443",
		"source_ranges": "0.0.0.0/0",
	}
	_, err := p.Apply(ctx, provider.Operation{
		Op:   provider.OpCreate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)

	fw := firewalls.items["allow-https"]
	require.NotNil(t, fw)
	require.Len(t, fw.Rules, 1)
	assert.Equal(t, hcloud.FirewallRuleDirectionIn, fw.Rules[0].Direction)
	require.NotNil(t, fw.Rules[0].Port)
	assert.Equal(t, "443", *fw.Rules[0].Port)

	live, err := p.FetchLive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, attrs, live.Attrs)

	// update narrows the source range
	attrs["source_ranges"] = "10.0.0.0/8"
	_, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpUpdate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)
	require.Len(t, firewalls.items["allow-https"].Rules[0].SourceIPs, 1)
	assert.Equal(t, mustCIDR("10.0.0.0/8").String(), firewalls.items["allow-https"].Rules[0].SourceIPs[0].String())
}

func TestInstanceGroupConverges(t *testing.T) {
	p, _, _, servers, _ := newFakeProvider()
	ctx := context.Background()

	_, err := p.Apply(ctx, provider.Operation{Op: provider.OpCreate, Node: netNode("trust")})
	require.NoError(t, err)

	id := graph.Identity{Kind: graph.KindInstanceGroup, Name: "fw"}
	attrs := map[string]string{
		"subnet": "trust-a", "network": "trust",
		"size": "2", "server_type": "cx32", "image": "vmseries-10", "zone": "eu-central",
	}
	rec, err := p.Apply(ctx, provider.Operation{
		Op:   provider.OpCreate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)
	assert.Equal(t, "2", rec.Attrs["size"])
	assert.Contains(t, servers.items, "fw-0")
	assert.Contains(t, servers.items, "fw-1")

	// scale up reuses the existing members
	attrs["size"] = "3"
	rec, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpUpdate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)
	assert.Equal(t, "3", rec.Attrs["size"])
	assert.Len(t, servers.items, 3)

	// an image change rolls every member
	attrs["image"] = "vmseries-11"
	rec, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpUpdate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)
	assert.Equal(t, "vmseries-11", rec.Attrs["image"])
	for _, s := range servers.items {
		assert.Equal(t, "vmseries-11", s.Labels[labelImage])
	}

	_, err = p.Apply(ctx, provider.Operation{Op: provider.OpDelete, Prior: rec})
	require.NoError(t, err)
	assert.Empty(t, servers.items)
}

func TestInstanceGroupRolloutDeleteFailureIsClassified(t *testing.T) {
	p, _, _, servers, _ := newFakeProvider()
	ctx := context.Background()

	_, err := p.Apply(ctx, provider.Operation{Op: provider.OpCreate, Node: netNode("trust")})
	require.NoError(t, err)

	id := graph.Identity{Kind: graph.KindInstanceGroup, Name: "fw"}
	attrs := map[string]string{
		"subnet": "trust-a", "network": "trust",
		"size": "1", "server_type": "cx32", "image": "vmseries-10", "zone": "eu-central",
	}
	_, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpCreate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)

	// rolling the stale member fails with a transient API error
	attrs["image"] = "vmseries-11"
	servers.deleteErr = apiErr(hcloud.ErrorCodeLocked)
	_, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpUpdate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.Error(t, err)
	assert.True(t, provider.IsRetryable(err))

	// the retried update succeeds once the lock clears
	_, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpUpdate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)
	assert.Equal(t, "vmseries-11", servers.items["fw-0"].Labels[labelImage])
}

func TestLoadBalancerUpdate(t *testing.T) {
	p, _, _, _, lbs := newFakeProvider()
	ctx := context.Background()

	id := graph.Identity{Kind: graph.KindLoadBalancer, Name: "edge-lb"}
	attrs := map[string]string{
		"group": "fw", "zone": "eu-central", "type": "lb11",
		"algorithm": "round_robin", "port": "443",
	}
	prior, err := p.Apply(ctx, provider.Operation{
		Op:   provider.OpCreate,
		Node: &graph.Node{ID: id, Attrs: attrs},
	})
	require.NoError(t, err)
	assert.Equal(t, attrs, prior.Attrs)

	updated := map[string]string{
		"group": "fw2", "zone": "eu-central", "type": "lb11",
		"algorithm": "least_connections", "port": "8443",
	}
	rec, err := p.Apply(ctx, provider.Operation{
		Op:    provider.OpUpdate,
		Node:  &graph.Node{ID: id, Attrs: updated},
		Prior: prior,
	})
	require.NoError(t, err)
	assert.Equal(t, updated, rec.Attrs)

	lb := lbs.items["edge-lb"]
	assert.Equal(t, hcloud.LoadBalancerAlgorithmTypeLeastConnections, lb.Algorithm.Type)
	require.Len(t, lb.Services, 1)
	assert.Equal(t, 8443, lb.Services[0].ListenPort)
	require.Len(t, lb.Targets, 1)
	assert.Equal(t, labelGroup+"=fw2", lb.Targets[0].LabelSelector.Selector)
}

func TestUnsupportedKinds(t *testing.T) {
	p, _, _, _, _ := newFakeProvider()
	ctx := context.Background()

	_, err := p.FetchLive(ctx, graph.Identity{Kind: graph.KindPeering, Name: "a-b"})
	require.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, provider.IsRetryable(err))

	_, err = p.Apply(ctx, provider.Operation{
		Op:   provider.OpCreate,
		Node: &graph.Node{ID: graph.Identity{Kind: graph.KindAutoscaler, Name: "fw-scaler"}},
	})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	p, _, _, _, _ := newFakeProvider()
	ctx := context.Background()

	_, err := p.Apply(ctx, provider.Operation{
		Op: provider.OpDelete,
		Prior: state.Record{
			ID: graph.Identity{Kind: graph.KindNetwork, Name: "gone"},
		},
	})
	assert.True(t, provider.IsNotFound(err))
}
