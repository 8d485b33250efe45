package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fwmesh/fwmesh/internal/graph"
)

// BuildGraph turns a validated topology into the resource graph the
// planner and executor work on. Edges are derived from references:
// subnet -> network, firewall_rule -> network, route -> network,
// peering -> both networks, instance_group -> subnet,
// load_balancer -> instance_group, autoscaler -> instance_group.
func (t *Topology) BuildGraph() (*graph.Graph, error) {
	g := graph.New()

	type edge struct{ from, to graph.Identity }
	var edges []edge

	addNode := func(id graph.Identity, attrs map[string]string, deps ...graph.Identity) error {
		if err := g.AddNode(&graph.Node{ID: id, Attrs: attrs, DependsOn: deps}); err != nil {
			return err
		}
		for _, dep := range deps {
			edges = append(edges, edge{from: id, to: dep})
		}
		return nil
	}

	for _, n := range t.Networks {
		id := graph.Identity{Kind: graph.KindNetwork, Name: n.Name}
		if err := addNode(id, map[string]string{
			"ip_range": n.IPRange,
			"zone":     n.Zone,
		}); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, s := range t.Subnets {
		id := graph.Identity{Kind: graph.KindSubnet, Name: s.Name}
		dep := graph.Identity{Kind: graph.KindNetwork, Name: s.Network}
		if err := addNode(id, map[string]string{
			"network":  s.Network,
			"ip_range": s.IPRange,
			"zone":     s.Zone,
		}, dep); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, r := range t.FirewallRules {
		id := graph.Identity{Kind: graph.KindFirewallRule, Name: r.Name}
		dep := graph.Identity{Kind: graph.KindNetwork, Name: r.Network}
		attrs := map[string]string{
			"network":   r.Network,
			"direction": r.Direction,
			"protocol":  r.Protocol,
		}
		if r.Port != "" {
			attrs["port"] = r.Port
		}
		if len(r.SourceRanges) > 0 {
			attrs["source_ranges"] = strings.Join(r.SourceRanges, ",")
		}
		if err := addNode(id, attrs, dep); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, r := range t.Routes {
		id := graph.Identity{Kind: graph.KindRoute, Name: r.Name}
		dep := graph.Identity{Kind: graph.KindNetwork, Name: r.Network}
		if err := addNode(id, map[string]string{
			"network":     r.Network,
			"destination": r.Destination,
			"gateway":     r.Gateway,
		}, dep); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, p := range t.Peerings {
		id := graph.Identity{Kind: graph.KindPeering, Name: p.Name}
		left := graph.Identity{Kind: graph.KindNetwork, Name: p.Network}
		right := graph.Identity{Kind: graph.KindNetwork, Name: p.PeerNetwork}
		if err := addNode(id, map[string]string{
			"network":      p.Network,
			"peer_network": p.PeerNetwork,
		}, left, right); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	subnetNetwork := make(map[string]string, len(t.Subnets))
	for _, s := range t.Subnets {
		subnetNetwork[s.Name] = s.Network
	}
	for _, ig := range t.InstanceGroups {
		id := graph.Identity{Kind: graph.KindInstanceGroup, Name: ig.Name}
		dep := graph.Identity{Kind: graph.KindSubnet, Name: ig.Subnet}
		if err := addNode(id, map[string]string{
			"subnet":      ig.Subnet,
			"network":     subnetNetwork[ig.Subnet],
			"size":        strconv.Itoa(ig.Size),
			"server_type": ig.ServerType,
			"image":       ig.Image,
			"zone":        ig.Zone,
		}, dep); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, lb := range t.LoadBalancers {
		id := graph.Identity{Kind: graph.KindLoadBalancer, Name: lb.Name}
		dep := graph.Identity{Kind: graph.KindInstanceGroup, Name: lb.Group}
		if err := addNode(id, map[string]string{
			"group":     lb.Group,
			"zone":      lb.Zone,
			"type":      lb.Type,
			"algorithm": lb.Algorithm,
			"port":      lb.Port,
		}, dep); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, a := range t.Autoscalers {
		id := graph.Identity{Kind: graph.KindAutoscaler, Name: a.Name}
		dep := graph.Identity{Kind: graph.KindInstanceGroup, Name: a.Target}
		if err := addNode(id, map[string]string{
			"target":     a.Target,
			"min":        strconv.Itoa(a.Min),
			"max":        strconv.Itoa(a.Max),
			"cpu_target": strconv.Itoa(a.CPUTarget),
		}, dep); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}

	for _, e := range edges {
		if err := g.AddEdge(e.from, e.to); err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
	}
	return g, nil
}
