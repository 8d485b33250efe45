package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validate checks the topology for structural problems. All issues are
// collected into one *Error.
func (t *Topology) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if t.Name == "" {
		add("topology name is required")
	}

	networks := make(map[string]Network)
	for _, n := range t.Networks {
		if _, dup := networks[n.Name]; dup {
			add("duplicate network %q", n.Name)
			continue
		}
		networks[n.Name] = n
		if !validCIDR(n.IPRange) {
			add("network %q: invalid ip_range %q", n.Name, n.IPRange)
		}
	}

	subnets := make(map[string]Subnet)
	for _, s := range t.Subnets {
		if _, dup := subnets[s.Name]; dup {
			add("duplicate subnet %q", s.Name)
			continue
		}
		subnets[s.Name] = s
		parent, ok := networks[s.Network]
		if !ok {
			add("subnet %q: unknown network %q", s.Name, s.Network)
		}
		switch {
		case s.IPRange == "":
			add("subnet %q: no ip_range and none could be assigned from network %q", s.Name, s.Network)
		case !validCIDR(s.IPRange):
			add("subnet %q: invalid ip_range %q", s.Name, s.IPRange)
		case ok && validCIDR(parent.IPRange) && !cidrContains(parent.IPRange, s.IPRange):
			add("subnet %q: ip_range %s is outside network %q (%s)", s.Name, s.IPRange, parent.Name, parent.IPRange)
		}
	}

	seenRules := make(map[string]struct{})
	for _, r := range t.FirewallRules {
		if _, dup := seenRules[r.Name]; dup {
			add("duplicate firewall_rule %q", r.Name)
			continue
		}
		seenRules[r.Name] = struct{}{}
		if _, ok := networks[r.Network]; !ok {
			add("firewall_rule %q: unknown network %q", r.Name, r.Network)
		}
		if r.Direction != "in" && r.Direction != "out" {
			add("firewall_rule %q: direction must be \"in\" or \"out\", got %q", r.Name, r.Direction)
		}
		switch r.Protocol {
		case "tcp", "udp":
			if !validPortRange(r.Port) {
				add("firewall_rule %q: invalid port %q", r.Name, r.Port)
			}
		case "icmp":
			if r.Port != "" {
				add("firewall_rule %q: icmp rules take no port", r.Name)
			}
		default:
			add("firewall_rule %q: unsupported protocol %q", r.Name, r.Protocol)
		}
		for _, cidr := range r.SourceRanges {
			if !validCIDR(cidr) {
				add("firewall_rule %q: invalid source range %q", r.Name, cidr)
			}
		}
	}

	seenRoutes := make(map[string]struct{})
	for _, r := range t.Routes {
		if _, dup := seenRoutes[r.Name]; dup {
			add("duplicate route %q", r.Name)
			continue
		}
		seenRoutes[r.Name] = struct{}{}
		if _, ok := networks[r.Network]; !ok {
			add("route %q: unknown network %q", r.Name, r.Network)
		}
		if !validCIDR(r.Destination) {
			add("route %q: invalid destination %q", r.Name, r.Destination)
		}
		if !validIP(r.Gateway) {
			add("route %q: invalid gateway %q", r.Name, r.Gateway)
		}
	}

	seenPeerings := make(map[string]struct{})
	for _, p := range t.Peerings {
		if _, dup := seenPeerings[p.Name]; dup {
			add("duplicate peering %q", p.Name)
			continue
		}
		seenPeerings[p.Name] = struct{}{}
		if _, ok := networks[p.Network]; !ok {
			add("peering %q: unknown network %q", p.Name, p.Network)
		}
		if _, ok := networks[p.PeerNetwork]; !ok {
			add("peering %q: unknown peer_network %q", p.Name, p.PeerNetwork)
		}
		if p.Network == p.PeerNetwork {
			add("peering %q: cannot peer network %q with itself", p.Name, p.Network)
		}
	}

	groups := make(map[string]struct{})
	for _, g := range t.InstanceGroups {
		if _, dup := groups[g.Name]; dup {
			add("duplicate instance_group %q", g.Name)
			continue
		}
		groups[g.Name] = struct{}{}
		if _, ok := subnets[g.Subnet]; !ok {
			add("instance_group %q: unknown subnet %q", g.Name, g.Subnet)
		}
		if g.Size < 1 {
			add("instance_group %q: size must be at least 1", g.Name)
		}
		if g.ServerType == "" {
			add("instance_group %q: server_type is required", g.Name)
		}
		if g.Image == "" {
			add("instance_group %q: image is required", g.Name)
		}
	}

	seenLBs := make(map[string]struct{})
	for _, lb := range t.LoadBalancers {
		if _, dup := seenLBs[lb.Name]; dup {
			add("duplicate load_balancer %q", lb.Name)
			continue
		}
		seenLBs[lb.Name] = struct{}{}
		if _, ok := groups[lb.Group]; !ok {
			add("load_balancer %q: unknown instance_group %q", lb.Name, lb.Group)
		}
		if !validPortRange(lb.Port) {
			add("load_balancer %q: invalid port %q", lb.Name, lb.Port)
		}
	}

	seenScalers := make(map[string]struct{})
	for _, a := range t.Autoscalers {
		if _, dup := seenScalers[a.Name]; dup {
			add("duplicate autoscaler %q", a.Name)
			continue
		}
		seenScalers[a.Name] = struct{}{}
		if _, ok := groups[a.Target]; !ok {
			add("autoscaler %q: unknown target instance_group %q", a.Name, a.Target)
		}
		if a.Min < 1 || a.Max < a.Min {
			add("autoscaler %q: need 1 <= min <= max, got min=%d max=%d", a.Name, a.Min, a.Max)
		}
		if a.CPUTarget < 1 || a.CPUTarget > 100 {
			add("autoscaler %q: cpu_target must be 1-100, got %d", a.Name, a.CPUTarget)
		}
	}

	if t.State.Backend != "sqlite" && t.State.Backend != "s3" {
		add("state backend must be \"sqlite\" or \"s3\", got %q", t.State.Backend)
	}
	if t.State.Backend == "s3" && t.State.Bucket == "" {
		add("state backend s3 requires a bucket")
	}

	if len(issues) > 0 {
		return &Error{Issues: issues}
	}
	return nil
}

// validPortRange accepts "443" or "1000-2000" within 1-65535.
func validPortRange(s string) bool {
	if s == "" {
		return false
	}
	parts := strings.SplitN(s, "-", 2)
	lo, err := strconv.Atoi(parts[0])
	if err != nil || lo < 1 || lo > 65535 {
		return false
	}
	if len(parts) == 1 {
		return true
	}
	hi, err := strconv.Atoi(parts[1])
	return err == nil && hi >= lo && hi <= 65535
}

func cidrContains(outer, inner string) bool {
	_, outerNet, err := net.ParseCIDR(outer)
	if err != nil {
		return false
	}
	innerIP, innerNet, err := net.ParseCIDR(inner)
	if err != nil {
		return false
	}
	outerLen, _ := outerNet.Mask.Size()
	innerLen, _ := innerNet.Mask.Size()
	return outerNet.Contains(innerIP) && innerLen >= outerLen
}
