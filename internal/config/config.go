package config

import (
	"fmt"
	"strings"
	"time"
)

// Error is the fatal pre-planning validation error. It collects every issue
// found in one load so the user fixes the file in one round trip.
type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	if len(e.Issues) == 1 {
		return "invalid topology: " + e.Issues[0]
	}
	return fmt.Sprintf("invalid topology (%d issues):\n  - %s",
		len(e.Issues), strings.Join(e.Issues, "\n  - "))
}

// Settings tunes a reconciliation pass.
type Settings struct {
	Parallelism  int           `yaml:"parallelism"`
	Attempts     int           `yaml:"attempts"`
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
}

// StateConfig selects and configures the state backend.
type StateConfig struct {
	// Backend is "sqlite" (default) or "s3".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file, default "<name>.state.db".
	Path string `yaml:"path"`

	// S3 settings; credentials come from the environment.
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
}

// Network declares a private network.
type Network struct {
	Name    string `yaml:"name"`
	IPRange string `yaml:"ip_range"`
	Zone    string `yaml:"zone"`
}

// Subnet declares a subnet inside a network. An empty IPRange is assigned
// automatically by carving /24 blocks out of the parent network, in
// declaration order.
type Subnet struct {
	Name    string `yaml:"name"`
	Network string `yaml:"network"`
	IPRange string `yaml:"ip_range"`
	Zone    string `yaml:"zone"`
}

// FirewallRule declares one traffic rule attached to a network.
type FirewallRule struct {
	Name         string   `yaml:"name"`
	Network      string   `yaml:"network"`
	Direction    string   `yaml:"direction"` // "in" or "out"
	Protocol     string   `yaml:"protocol"`  // "tcp", "udp", "icmp"
	Port         string   `yaml:"port"`      // "443" or "1000-2000"; empty for icmp
	SourceRanges []string `yaml:"source_ranges"`
}

// Route declares a static route in a network.
type Route struct {
	Name        string `yaml:"name"`
	Network     string `yaml:"network"`
	Destination string `yaml:"destination"`
	Gateway     string `yaml:"gateway"`
}

// Peering connects two declared networks.
type Peering struct {
	Name        string `yaml:"name"`
	Network     string `yaml:"network"`
	PeerNetwork string `yaml:"peer_network"`
}

// InstanceGroup declares a set of identical firewall instances in a subnet.
type InstanceGroup struct {
	Name       string `yaml:"name"`
	Subnet     string `yaml:"subnet"`
	Size       int    `yaml:"size"`
	ServerType string `yaml:"server_type"`
	Image      string `yaml:"image"`
	Zone       string `yaml:"zone"`
}

// LoadBalancer declares a load balancer fronting an instance group.
type LoadBalancer struct {
	Name      string `yaml:"name"`
	Group     string `yaml:"group"`
	Zone      string `yaml:"zone"`
	Type      string `yaml:"type"`
	Algorithm string `yaml:"algorithm"`
	Port      string `yaml:"port"`
}

// Autoscaler declares scaling bounds for an instance group.
type Autoscaler struct {
	Name      string `yaml:"name"`
	Target    string `yaml:"target"` // instance group name
	Min       int    `yaml:"min"`
	Max       int    `yaml:"max"`
	CPUTarget int    `yaml:"cpu_target"` // percent
}

// Topology is the full declared configuration.
type Topology struct {
	Name     string      `yaml:"name"`
	Zone     string      `yaml:"zone"`
	Settings Settings    `yaml:"settings"`
	State    StateConfig `yaml:"state"`

	Networks       []Network       `yaml:"networks"`
	Subnets        []Subnet        `yaml:"subnets"`
	FirewallRules  []FirewallRule  `yaml:"firewall_rules"`
	Routes         []Route         `yaml:"routes"`
	Peerings       []Peering       `yaml:"peerings"`
	InstanceGroups []InstanceGroup `yaml:"instance_groups"`
	LoadBalancers  []LoadBalancer  `yaml:"load_balancers"`
	Autoscalers    []Autoscaler    `yaml:"autoscalers"`
}
