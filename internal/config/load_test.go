package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTopology = `
name: edge
networks:
  - name: trust
    ip_range: 10.0.0.0/16
  - name: untrust
    ip_range: 10.1.0.0/16
subnets:
  - name: trust-a
    network: trust
  - name: trust-b
    network: trust
    ip_range: 10.0.7.0/24
firewall_rules:
  - name: allow-https
    network: trust
    port: "443"
    source_ranges: ["0.0.0.0/0"]
routes:
  - name: default-out
    network: trust
    destination: 0.0.0.0/0
    gateway: 10.0.0.1
peerings:
  - name: trust-untrust
    network: trust
    peer_network: untrust
instance_groups:
  - name: fw
    subnet: trust-a
    size: 2
    server_type: cx32
    image: vmseries-10
load_balancers:
  - name: edge-lb
    group: fw
    port: "443"
autoscalers:
  - name: fw-scaler
    target: fw
    min: 2
    max: 6
    cpu_target: 70
`

func TestLoadValidTopology(t *testing.T) {
	topo, err := Load([]byte(validTopology))
	require.NoError(t, err)

	assert.Equal(t, "edge", topo.Name)
	assert.Equal(t, "eu-central", topo.Zone, "zone defaulted")
	assert.Equal(t, 4, topo.Settings.Parallelism)
	assert.Equal(t, "sqlite", topo.State.Backend)
	assert.Equal(t, "edge.state.db", topo.State.Path)

	// defaults trickle into resources
	assert.Equal(t, "in", topo.FirewallRules[0].Direction)
	assert.Equal(t, "tcp", topo.FirewallRules[0].Protocol)
	assert.Equal(t, "round_robin", topo.LoadBalancers[0].Algorithm)
}

func TestLoadAssignsSubnetRanges(t *testing.T) {
	topo, err := Load([]byte(validTopology))
	require.NoError(t, err)

	// trust-a had no range; 10.0.0.0/24 is the first free /24 in trust
	assert.Equal(t, "10.0.0.0/24", topo.Subnets[0].IPRange)
	// explicit ranges are left alone
	assert.Equal(t, "10.0.7.0/24", topo.Subnets[1].IPRange)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load([]byte("name: edge\nnetwroks: []\n"))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadCollectsAllIssues(t *testing.T) {
	bad := `
name: ""
networks:
  - name: trust
    ip_range: not-a-cidr
  - name: trust
    ip_range: 10.0.0.0/16
subnets:
  - name: orphan
    network: missing
    ip_range: 10.0.0.0/24
firewall_rules:
  - name: weird
    network: trust
    direction: sideways
    protocol: gre
`
	_, err := Load([]byte(bad))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)

	assert.GreaterOrEqual(t, len(cfgErr.Issues), 5)
	assert.Contains(t, cfgErr.Error(), "duplicate network")
	assert.Contains(t, cfgErr.Error(), "unknown network")
	assert.Contains(t, cfgErr.Error(), "direction")
	assert.Contains(t, cfgErr.Error(), "protocol")
}

func TestLoadRejectsSubnetOutsideNetwork(t *testing.T) {
	bad := `
name: edge
networks:
  - name: trust
    ip_range: 10.0.0.0/16
subnets:
  - name: stray
    network: trust
    ip_range: 192.168.0.0/24
`
	_, err := Load([]byte(bad))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "outside network")
}

func TestLoadRejectsBadAutoscalerBounds(t *testing.T) {
	bad := `
name: edge
networks:
  - name: trust
    ip_range: 10.0.0.0/16
subnets:
  - name: trust-a
    network: trust
instance_groups:
  - name: fw
    subnet: trust-a
    server_type: cx32
    image: vmseries-10
autoscalers:
  - name: fw-scaler
    target: fw
    min: 5
    max: 2
    cpu_target: 300
`
	_, err := Load([]byte(bad))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "min <= max")
	assert.Contains(t, cfgErr.Error(), "cpu_target")
}
