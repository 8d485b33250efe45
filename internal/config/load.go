package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the topology file looked up when none is given.
const DefaultFile = "fwmesh.yaml"

// LoadFile reads, defaults, and validates the topology at path.
func LoadFile(path string) (*Topology, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	return Load(data)
}

// Load parses a topology from YAML bytes. Unknown fields are rejected so
// typos fail loudly instead of silently dropping a rule.
func Load(data []byte) (*Topology, error) {
	var t Topology
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, &Error{Issues: []string{fmt.Sprintf("failed to parse yaml: %v", err)}}
	}

	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Topology) applyDefaults() {
	if t.Zone == "" {
		t.Zone = "eu-central"
	}
	if t.Settings.Parallelism == 0 {
		t.Settings.Parallelism = 4
	}
	if t.Settings.Attempts == 0 {
		t.Settings.Attempts = 3
	}
	if t.State.Backend == "" {
		t.State.Backend = "sqlite"
	}
	if t.State.Backend == "sqlite" && t.State.Path == "" {
		name := t.Name
		if name == "" {
			name = "fwmesh"
		}
		t.State.Path = name + ".state.db"
	}

	for i := range t.Networks {
		if t.Networks[i].Zone == "" {
			t.Networks[i].Zone = t.Zone
		}
	}
	for i := range t.Subnets {
		if t.Subnets[i].Zone == "" {
			t.Subnets[i].Zone = t.Zone
		}
	}
	for i := range t.InstanceGroups {
		if t.InstanceGroups[i].Zone == "" {
			t.InstanceGroups[i].Zone = t.Zone
		}
		if t.InstanceGroups[i].Size == 0 {
			t.InstanceGroups[i].Size = 1
		}
	}
	for i := range t.LoadBalancers {
		if t.LoadBalancers[i].Zone == "" {
			t.LoadBalancers[i].Zone = t.Zone
		}
		if t.LoadBalancers[i].Algorithm == "" {
			t.LoadBalancers[i].Algorithm = "round_robin"
		}
		if t.LoadBalancers[i].Type == "" {
			t.LoadBalancers[i].Type = "lb11"
		}
	}
	for i := range t.FirewallRules {
		if t.FirewallRules[i].Direction == "" {
			t.FirewallRules[i].Direction = "in"
		}
		if t.FirewallRules[i].Protocol == "" {
			t.FirewallRules[i].Protocol = "tcp"
		}
	}

	t.assignSubnetRanges()
}

// assignSubnetRanges carves /24 blocks out of each parent network for
// subnets declared without an explicit range. Explicit ranges are left
// untouched; assignment order follows declaration order, so the result is
// stable across loads.
func (t *Topology) assignSubnetRanges() {
	networks := make(map[string]string, len(t.Networks))
	for _, n := range t.Networks {
		networks[n.Name] = n.IPRange
	}
	next := make(map[string]int, len(t.Networks))

	for i := range t.Subnets {
		s := &t.Subnets[i]
		if s.IPRange != "" {
			continue
		}
		parent, ok := networks[s.Network]
		if !ok {
			continue // validation reports the dangling reference
		}
		for {
			candidate, err := SubnetRange(parent, 24, next[s.Network])
			if err != nil {
				break // validation reports the exhausted/invalid range
			}
			next[s.Network]++
			if !t.rangeInUse(candidate) {
				s.IPRange = candidate
				break
			}
		}
	}
}

func (t *Topology) rangeInUse(cidr string) bool {
	for _, s := range t.Subnets {
		if s.IPRange == cidr {
			return true
		}
	}
	return false
}
