package provider

import "github.com/fwmesh/fwmesh/internal/graph"

// Schema describes which declared fields of a kind cannot be changed in
// place. A change to an immutable field forces a Replace.
type Schema interface {
	Immutable(kind graph.Kind, field string) bool
}

// fieldSchema is a static per-kind immutable field table.
type fieldSchema map[graph.Kind]map[string]struct{}

func (s fieldSchema) Immutable(kind graph.Kind, field string) bool {
	_, ok := s[kind][field]
	return ok
}

// DefaultSchema returns the immutable field table shared by the supported
// providers. Addressing and placement fields force replacement; everything
// else is updatable in place.
func DefaultSchema() Schema {
	return fieldSchema{
		graph.KindNetwork: {
			"ip_range": {},
			"zone":     {},
		},
		graph.KindSubnet: {
			"ip_range": {},
			"network":  {},
			"zone":     {},
		},
		graph.KindFirewallRule: {
			"network": {},
		},
		graph.KindRoute: {
			"network":     {},
			"destination": {},
		},
		graph.KindPeering: {
			"network":      {},
			"peer_network": {},
		},
		graph.KindInstanceGroup: {
			"subnet":  {},
			"network": {},
			"zone":    {},
		},
		graph.KindLoadBalancer: {
			"zone": {},
		},
		graph.KindAutoscaler: {
			"target": {},
		},
	}
}
