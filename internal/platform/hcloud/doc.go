// Package hcloud adapts the reconciliation engine to the Hetzner Cloud API.
//
// The mapping is one fwmesh resource to one named cloud object where the API
// has one (networks, firewalls, load balancers), and label-based bookkeeping
// where it does not: subnets and routes are unnamed entries inside their
// parent network, so their fwmesh names are recorded as labels on the
// network; instance groups are sets of servers sharing a group label.
//
// Peerings and autoscalers have no Hetzner Cloud API and fail with
// ErrUnsupported.
package hcloud
