package hcloud

import (
	"context"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// The API surface actually used, split per resource family so tests can
// substitute fakes. *hcloud.Client's sub-clients satisfy these.

type networkAPI interface {
	GetByName(ctx context.Context, name string) (*hcloud.Network, *hcloud.Response, error)
	AllWithOpts(ctx context.Context, opts hcloud.NetworkListOpts) ([]*hcloud.Network, error)
	Create(ctx context.Context, opts hcloud.NetworkCreateOpts) (*hcloud.Network, *hcloud.Response, error)
	Update(ctx context.Context, network *hcloud.Network, opts hcloud.NetworkUpdateOpts) (*hcloud.Network, *hcloud.Response, error)
	Delete(ctx context.Context, network *hcloud.Network) (*hcloud.Response, error)
	AddSubnet(ctx context.Context, network *hcloud.Network, opts hcloud.NetworkAddSubnetOpts) (*hcloud.Action, *hcloud.Response, error)
	DeleteSubnet(ctx context.Context, network *hcloud.Network, opts hcloud.NetworkDeleteSubnetOpts) (*hcloud.Action, *hcloud.Response, error)
	AddRoute(ctx context.Context, network *hcloud.Network, opts hcloud.NetworkAddRouteOpts) (*hcloud.Action, *hcloud.Response, error)
	DeleteRoute(ctx context.Context, network *hcloud.Network, opts hcloud.NetworkDeleteRouteOpts) (*hcloud.Action, *hcloud.Response, error)
}

type firewallAPI interface {
	GetByName(ctx context.Context, name string) (*hcloud.Firewall, *hcloud.Response, error)
	Create(ctx context.Context, opts hcloud.FirewallCreateOpts) (hcloud.FirewallCreateResult, *hcloud.Response, error)
	SetRules(ctx context.Context, firewall *hcloud.Firewall, opts hcloud.FirewallSetRulesOpts) ([]*hcloud.Action, *hcloud.Response, error)
	Delete(ctx context.Context, firewall *hcloud.Firewall) (*hcloud.Response, error)
}

type loadBalancerAPI interface {
	GetByName(ctx context.Context, name string) (*hcloud.LoadBalancer, *hcloud.Response, error)
	Create(ctx context.Context, opts hcloud.LoadBalancerCreateOpts) (hcloud.LoadBalancerCreateResult, *hcloud.Response, error)
	Delete(ctx context.Context, lb *hcloud.LoadBalancer) (*hcloud.Response, error)
	ChangeAlgorithm(ctx context.Context, lb *hcloud.LoadBalancer, opts hcloud.LoadBalancerChangeAlgorithmOpts) (*hcloud.Action, *hcloud.Response, error)
	AddService(ctx context.Context, lb *hcloud.LoadBalancer, opts hcloud.LoadBalancerAddServiceOpts) (*hcloud.Action, *hcloud.Response, error)
	DeleteService(ctx context.Context, lb *hcloud.LoadBalancer, listenPort int) (*hcloud.Action, *hcloud.Response, error)
	AddLabelSelectorTarget(ctx context.Context, lb *hcloud.LoadBalancer, opts hcloud.LoadBalancerAddLabelSelectorTargetOpts) (*hcloud.Action, *hcloud.Response, error)
	RemoveLabelSelectorTarget(ctx context.Context, lb *hcloud.LoadBalancer, labelSelector string) (*hcloud.Action, *hcloud.Response, error)
}

type serverAPI interface {
	AllWithOpts(ctx context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error)
	Create(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, *hcloud.Response, error)
	DeleteWithResult(ctx context.Context, server *hcloud.Server) (*hcloud.ServerDeleteResult, *hcloud.Response, error)
}

// Provider reconciles topology resources against the Hetzner Cloud API.
type Provider struct {
	networks      networkAPI
	firewalls     firewallAPI
	loadBalancers loadBalancerAPI
	servers       serverAPI
}

// New builds a Provider around a real API client authenticated with token.
func New(token string) *Provider {
	client := hcloud.NewClient(
		hcloud.WithToken(token),
		hcloud.WithApplication("fwmesh", ""),
	)
	return &Provider{
		networks:      &client.Network,
		firewalls:     &client.Firewall,
		loadBalancers: &client.LoadBalancer,
		servers:       &client.Server,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "hcloud" }

// location maps a network zone to the default location servers and load
// balancers are placed in.
func location(zone string) *hcloud.Location {
	name := map[string]string{
		"eu-central":   "fsn1",
		"us-east":      "ash",
		"us-west":      "hil",
		"ap-southeast": "sin",
	}[zone]
	if name == "" {
		name = "fsn1"
	}
	return &hcloud.Location{Name: name}
}
