package hcloud

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// In-memory stand-ins for the API sub-clients. They model just enough
// behavior for the adapter: lookups by name return nil without error when
// the object is missing, like the real client does.

type fakeNetworks struct {
	mu     sync.Mutex
	nextID int64
	items  map[string]*hcloud.Network
}

func newFakeNetworks() *fakeNetworks {
	return &fakeNetworks{items: make(map[string]*hcloud.Network)}
}

func (f *fakeNetworks) GetByName(_ context.Context, name string) (*hcloud.Network, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[name], nil, nil
}

func (f *fakeNetworks) AllWithOpts(_ context.Context, _ hcloud.NetworkListOpts) ([]*hcloud.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*hcloud.Network, 0, len(f.items))
	for _, n := range f.items {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNetworks) Create(_ context.Context, opts hcloud.NetworkCreateOpts) (*hcloud.Network, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n := &hcloud.Network{
		ID:      f.nextID,
		Name:    opts.Name,
		IPRange: opts.IPRange,
		Labels:  opts.Labels,
	}
	f.items[opts.Name] = n
	return n, nil, nil
}

func (f *fakeNetworks) Update(_ context.Context, network *hcloud.Network, opts hcloud.NetworkUpdateOpts) (*hcloud.Network, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.items[network.Name]
	if opts.Labels != nil {
		n.Labels = opts.Labels
	}
	return n, nil, nil
}

func (f *fakeNetworks) Delete(_ context.Context, network *hcloud.Network) (*hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, network.Name)
	return nil, nil
}

func (f *fakeNetworks) AddSubnet(_ context.Context, network *hcloud.Network, opts hcloud.NetworkAddSubnetOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.items[network.Name]
	n.Subnets = append(n.Subnets, opts.Subnet)
	return nil, nil, nil
}

func (f *fakeNetworks) DeleteSubnet(_ context.Context, network *hcloud.Network, opts hcloud.NetworkDeleteSubnetOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.items[network.Name]
	kept := n.Subnets[:0]
	for _, sn := range n.Subnets {
		if sn.IPRange.String() != opts.Subnet.IPRange.String() {
			kept = append(kept, sn)
		}
	}
	n.Subnets = kept
	return nil, nil, nil
}

func (f *fakeNetworks) AddRoute(_ context.Context, network *hcloud.Network, opts hcloud.NetworkAddRouteOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.items[network.Name]
	n.Routes = append(n.Routes, opts.Route)
	return nil, nil, nil
}

func (f *fakeNetworks) DeleteRoute(_ context.Context, network *hcloud.Network, opts hcloud.NetworkDeleteRouteOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.items[network.Name]
	kept := n.Routes[:0]
	for _, r := range n.Routes {
		if r.Destination.String() != opts.Route.Destination.String() {
			kept = append(kept, r)
		}
	}
	n.Routes = kept
	return nil, nil, nil
}

type fakeFirewalls struct {
	mu     sync.Mutex
	nextID int64
	items  map[string]*hcloud.Firewall
}

func newFakeFirewalls() *fakeFirewalls {
	return &fakeFirewalls{items: make(map[string]*hcloud.Firewall)}
}

func (f *fakeFirewalls) GetByName(_ context.Context, name string) (*hcloud.Firewall, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[name], nil, nil
}

func (f *fakeFirewalls) Create(_ context.Context, opts hcloud.FirewallCreateOpts) (hcloud.FirewallCreateResult, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	fw := &hcloud.Firewall{
		ID:     f.nextID,
		Name:   opts.Name,
		Labels: opts.Labels,
		Rules:  opts.Rules,
	}
	f.items[opts.Name] = fw
	return hcloud.FirewallCreateResult{Firewall: fw}, nil, nil
}

func (f *fakeFirewalls) SetRules(_ context.Context, firewall *hcloud.Firewall, opts hcloud.FirewallSetRulesOpts) ([]*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[firewall.Name].Rules = opts.Rules
	return nil, nil, nil
}

func (f *fakeFirewalls) Delete(_ context.Context, firewall *hcloud.Firewall) (*hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, firewall.Name)
	return nil, nil
}

type fakeServers struct {
	mu     sync.Mutex
	nextID int64
	items  map[string]*hcloud.Server

	// deleteErr is returned by the next DeleteWithResult call, once.
	deleteErr error
}

func newFakeServers() *fakeServers {
	return &fakeServers{items: make(map[string]*hcloud.Server)}
}

func (f *fakeServers) AllWithOpts(_ context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, value, _ := strings.Cut(opts.LabelSelector, "=")
	var out []*hcloud.Server
	for _, s := range f.items {
		if s.Labels[key] == value {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeServers) Create(_ context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := &hcloud.Server{
		ID:         f.nextID,
		Name:       opts.Name,
		ServerType: opts.ServerType,
		Labels:     opts.Labels,
	}
	f.items[opts.Name] = s
	return hcloud.ServerCreateResult{Server: s}, nil, nil
}

func (f *fakeServers) DeleteWithResult(_ context.Context, server *hcloud.Server) (*hcloud.ServerDeleteResult, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		err := f.deleteErr
		f.deleteErr = nil
		return nil, nil, err
	}
	delete(f.items, server.Name)
	return &hcloud.ServerDeleteResult{}, nil, nil
}

type fakeLoadBalancers struct {
	mu     sync.Mutex
	nextID int64
	items  map[string]*hcloud.LoadBalancer
}

func newFakeLoadBalancers() *fakeLoadBalancers {
	return &fakeLoadBalancers{items: make(map[string]*hcloud.LoadBalancer)}
}

func (f *fakeLoadBalancers) GetByName(_ context.Context, name string) (*hcloud.LoadBalancer, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[name], nil, nil
}

func (f *fakeLoadBalancers) Create(_ context.Context, opts hcloud.LoadBalancerCreateOpts) (hcloud.LoadBalancerCreateResult, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	lb := &hcloud.LoadBalancer{
		ID:               f.nextID,
		Name:             opts.Name,
		LoadBalancerType: opts.LoadBalancerType,
		Labels:           opts.Labels,
	}
	if opts.Algorithm != nil {
		lb.Algorithm = *opts.Algorithm
	}
	for _, svc := range opts.Services {
		lb.Services = append(lb.Services, hcloud.LoadBalancerService{
			Protocol:        svc.Protocol,
			ListenPort:      *svc.ListenPort,
			DestinationPort: *svc.DestinationPort,
		})
	}
	for _, target := range opts.Targets {
		lb.Targets = append(lb.Targets, hcloud.LoadBalancerTarget{
			Type:          target.Type,
			LabelSelector: &hcloud.LoadBalancerTargetLabelSelector{Selector: target.LabelSelector.Selector},
		})
	}
	f.items[opts.Name] = lb
	return hcloud.LoadBalancerCreateResult{LoadBalancer: lb}, nil, nil
}

func (f *fakeLoadBalancers) Delete(_ context.Context, lb *hcloud.LoadBalancer) (*hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, lb.Name)
	return nil, nil
}

func (f *fakeLoadBalancers) ChangeAlgorithm(_ context.Context, lb *hcloud.LoadBalancer, opts hcloud.LoadBalancerChangeAlgorithmOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[lb.Name].Algorithm = hcloud.LoadBalancerAlgorithm{Type: opts.Type}
	return nil, nil, nil
}

func (f *fakeLoadBalancers) AddService(_ context.Context, lb *hcloud.LoadBalancer, opts hcloud.LoadBalancerAddServiceOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[lb.Name].Services = append(f.items[lb.Name].Services, hcloud.LoadBalancerService{
		Protocol:        opts.Protocol,
		ListenPort:      *opts.ListenPort,
		DestinationPort: *opts.DestinationPort,
	})
	return nil, nil, nil
}

func (f *fakeLoadBalancers) DeleteService(_ context.Context, lb *hcloud.LoadBalancer, listenPort int) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[lb.Name]
	kept := item.Services[:0]
	for _, svc := range item.Services {
		if svc.ListenPort != listenPort {
			kept = append(kept, svc)
		}
	}
	item.Services = kept
	return nil, nil, nil
}

func (f *fakeLoadBalancers) AddLabelSelectorTarget(_ context.Context, lb *hcloud.LoadBalancer, opts hcloud.LoadBalancerAddLabelSelectorTargetOpts) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[lb.Name].Targets = append(f.items[lb.Name].Targets, hcloud.LoadBalancerTarget{
		Type:          hcloud.LoadBalancerTargetTypeLabelSelector,
		LabelSelector: &hcloud.LoadBalancerTargetLabelSelector{Selector: opts.Selector},
	})
	return nil, nil, nil
}

func (f *fakeLoadBalancers) RemoveLabelSelectorTarget(_ context.Context, lb *hcloud.LoadBalancer, labelSelector string) (*hcloud.Action, *hcloud.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[lb.Name]
	kept := item.Targets[:0]
	for _, target := range item.Targets {
		if target.LabelSelector == nil || target.LabelSelector.Selector != labelSelector {
			kept = append(kept, target)
		}
	}
	item.Targets = kept
	return nil, nil, nil
}

func newFakeProvider() (*Provider, *fakeNetworks, *fakeFirewalls, *fakeServers, *fakeLoadBalancers) {
	networks := newFakeNetworks()
	firewalls := newFakeFirewalls()
	servers := newFakeServers()
	lbs := newFakeLoadBalancers()
	p := &Provider{
		networks:      networks,
		firewalls:     firewalls,
		loadBalancers: lbs,
		servers:       servers,
	}
	return p, networks, firewalls, servers, lbs
}

func mustCIDR(s string) *net.IPNet {
	_, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return ipNet
}
