package hcloud

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

func (p *Provider) fetchNetwork(ctx context.Context, id graph.Identity) (state.Record, error) {
	n, _, err := p.networks.GetByName(ctx, id.Name)
	if err != nil {
		return state.Record{}, wrapErr(id, "fetch", err)
	}
	if n == nil {
		return state.Record{}, fmt.Errorf("network %s: %w", id.Name, provider.ErrNotFound)
	}
	return networkRecord(id, n), nil
}

func networkRecord(id graph.Identity, n *hcloud.Network) state.Record {
	attrs := map[string]string{"zone": n.Labels[labelZone]}
	if n.IPRange != nil {
		attrs["ip_range"] = n.IPRange.String()
	}
	return state.Record{
		ID:         id,
		ProviderID: strconv.FormatInt(n.ID, 10),
		Attrs:      attrs,
	}
}

func (p *Provider) applyNetwork(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	switch op.Op {
	case provider.OpCreate:
		attrs := op.Node.Attrs
		_, ipRange, err := net.ParseCIDR(attrs["ip_range"])
		if err != nil {
			return state.Record{}, &provider.Error{ID: id, Op: "create", Err: err}
		}
		labels := managedLabels()
		labels[labelZone] = attrs["zone"]
		n, _, err := p.networks.Create(ctx, hcloud.NetworkCreateOpts{
			Name:    id.Name,
			IPRange: ipRange,
			Labels:  labels,
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "create", err)
		}
		return networkRecord(id, n), nil

	case provider.OpUpdate:
		// Addressing and zone are immutable, so an update can only be a
		// label re-sync.
		n, err := p.getNetwork(ctx, id, id.Name)
		if err != nil {
			return state.Record{}, err
		}
		if err := p.setNetworkLabel(ctx, n, labelZone, op.Node.Attrs["zone"]); err != nil {
			return state.Record{}, wrapErr(id, "update", err)
		}
		rec := networkRecord(id, n)
		rec.Attrs["zone"] = op.Node.Attrs["zone"]
		return rec, nil

	case provider.OpDelete:
		n, _, err := p.networks.GetByName(ctx, id.Name)
		if err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		if n == nil {
			return state.Record{}, fmt.Errorf("network %s: %w", id.Name, provider.ErrNotFound)
		}
		if _, err := p.networks.Delete(ctx, n); err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		return state.Record{}, nil
	}
	return state.Record{}, &provider.Error{ID: id, Op: string(op.Op), Err: fmt.Errorf("unknown operation")}
}

// getNetwork resolves a parent network by name, wrapping failures for id.
func (p *Provider) getNetwork(ctx context.Context, id graph.Identity, name string) (*hcloud.Network, error) {
	n, _, err := p.networks.GetByName(ctx, name)
	if err != nil {
		return nil, wrapErr(id, "fetch", err)
	}
	if n == nil {
		return nil, &provider.Error{ID: id, Op: "fetch", Err: fmt.Errorf("parent network %q does not exist", name)}
	}
	return n, nil
}

// setNetworkLabel rewrites one bookkeeping label on a network. An empty
// value removes the label.
func (p *Provider) setNetworkLabel(ctx context.Context, n *hcloud.Network, key, value string) error {
	labels := make(map[string]string, len(n.Labels)+1)
	for k, v := range n.Labels {
		labels[k] = v
	}
	if value == "" {
		delete(labels, key)
	} else {
		labels[key] = value
	}
	updated, _, err := p.networks.Update(ctx, n, hcloud.NetworkUpdateOpts{Labels: labels})
	if err == nil && updated != nil {
		n.Labels = updated.Labels
	}
	return err
}

// findNetworkByLabel scans managed networks for the one carrying key.
func (p *Provider) findNetworkByLabel(ctx context.Context, id graph.Identity, key string) (*hcloud.Network, string, error) {
	nets, err := p.networks.AllWithOpts(ctx, hcloud.NetworkListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: managedSelector},
	})
	if err != nil {
		return nil, "", wrapErr(id, "fetch", err)
	}
	for _, n := range nets {
		if v, ok := n.Labels[key]; ok {
			return n, v, nil
		}
	}
	return nil, "", fmt.Errorf("%s: %w", id, provider.ErrNotFound)
}

func (p *Provider) fetchSubnet(ctx context.Context, id graph.Identity) (state.Record, error) {
	n, encoded, err := p.findNetworkByLabel(ctx, id, subnetLabelPrefix+id.Name)
	if err != nil {
		return state.Record{}, err
	}
	cidr := decodeCIDR(encoded)
	for _, sn := range n.Subnets {
		if sn.IPRange != nil && sn.IPRange.String() == cidr {
			return state.Record{
				ID:         id,
				ProviderID: fmt.Sprintf("%d/%s", n.ID, cidr),
				Attrs: map[string]string{
					"network":  n.Name,
					"ip_range": cidr,
					"zone":     string(sn.NetworkZone),
				},
			}, nil
		}
	}
	// Label present but the entry is gone: someone removed it out of band.
	return state.Record{}, fmt.Errorf("%s: %w", id, provider.ErrNotFound)
}

func (p *Provider) applySubnet(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	switch op.Op {
	case provider.OpCreate:
		attrs := op.Node.Attrs
		n, err := p.getNetwork(ctx, id, attrs["network"])
		if err != nil {
			return state.Record{}, err
		}
		_, ipRange, err := net.ParseCIDR(attrs["ip_range"])
		if err != nil {
			return state.Record{}, &provider.Error{ID: id, Op: "create", Err: err}
		}
		_, _, err = p.networks.AddSubnet(ctx, n, hcloud.NetworkAddSubnetOpts{
			Subnet: hcloud.NetworkSubnet{
				Type:        hcloud.NetworkSubnetTypeCloud,
				IPRange:     ipRange,
				NetworkZone: hcloud.NetworkZone(attrs["zone"]),
			},
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "create", err)
		}
		if err := p.setNetworkLabel(ctx, n, subnetLabelPrefix+id.Name, encodeCIDR(attrs["ip_range"])); err != nil {
			return state.Record{}, wrapErr(id, "create", err)
		}
		return state.Record{
			ID:         id,
			ProviderID: fmt.Sprintf("%d/%s", n.ID, attrs["ip_range"]),
			Attrs:      attrs,
		}, nil

	case provider.OpUpdate:
		// Every subnet field is immutable; nothing to do in place.
		return p.fetchSubnet(ctx, id)

	case provider.OpDelete:
		attrs := op.Prior.Attrs
		n, _, err := p.networks.GetByName(ctx, attrs["network"])
		if err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		if n == nil {
			return state.Record{}, fmt.Errorf("%s: %w", id, provider.ErrNotFound)
		}
		_, ipRange, err := net.ParseCIDR(attrs["ip_range"])
		if err != nil {
			return state.Record{}, &provider.Error{ID: id, Op: "delete", Err: err}
		}
		_, _, err = p.networks.DeleteSubnet(ctx, n, hcloud.NetworkDeleteSubnetOpts{
			Subnet: hcloud.NetworkSubnet{IPRange: ipRange},
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		if err := p.setNetworkLabel(ctx, n, subnetLabelPrefix+id.Name, ""); err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		return state.Record{}, nil
	}
	return state.Record{}, &provider.Error{ID: id, Op: string(op.Op), Err: fmt.Errorf("unknown operation")}
}

func (p *Provider) fetchRoute(ctx context.Context, id graph.Identity) (state.Record, error) {
	n, encoded, err := p.findNetworkByLabel(ctx, id, routeLabelPrefix+id.Name)
	if err != nil {
		return state.Record{}, err
	}
	dest, gw, ok := decodeRoute(encoded)
	if !ok {
		return state.Record{}, fmt.Errorf("%s: %w", id, provider.ErrNotFound)
	}
	for _, r := range n.Routes {
		if r.Destination != nil && r.Destination.String() == dest && r.Gateway.String() == gw {
			return state.Record{
				ID:         id,
				ProviderID: fmt.Sprintf("%d/%s", n.ID, dest),
				Attrs: map[string]string{
					"network":     n.Name,
					"destination": dest,
					"gateway":     gw,
				},
			}, nil
		}
	}
	return state.Record{}, fmt.Errorf("%s: %w", id, provider.ErrNotFound)
}

func (p *Provider) applyRoute(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	switch op.Op {
	case provider.OpCreate:
		attrs := op.Node.Attrs
		n, err := p.getNetwork(ctx, id, attrs["network"])
		if err != nil {
			return state.Record{}, err
		}
		if err := p.addRoute(ctx, id, n, attrs["destination"], attrs["gateway"]); err != nil {
			return state.Record{}, err
		}
		return state.Record{
			ID:         id,
			ProviderID: fmt.Sprintf("%d/%s", n.ID, attrs["destination"]),
			Attrs:      attrs,
		}, nil

	case provider.OpUpdate:
		// The gateway is the only mutable field; route entries are
		// immutable in the API, so swap the entry.
		attrs := op.Node.Attrs
		n, err := p.getNetwork(ctx, id, attrs["network"])
		if err != nil {
			return state.Record{}, err
		}
		if prior := op.Prior.Attrs; prior["gateway"] != "" {
			if err := p.removeRoute(ctx, id, n, prior["destination"], prior["gateway"]); err != nil {
				return state.Record{}, err
			}
		}
		if err := p.addRoute(ctx, id, n, attrs["destination"], attrs["gateway"]); err != nil {
			return state.Record{}, err
		}
		return state.Record{
			ID:         id,
			ProviderID: fmt.Sprintf("%d/%s", n.ID, attrs["destination"]),
			Attrs:      attrs,
		}, nil

	case provider.OpDelete:
		attrs := op.Prior.Attrs
		n, _, err := p.networks.GetByName(ctx, attrs["network"])
		if err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		if n == nil {
			return state.Record{}, fmt.Errorf("%s: %w", id, provider.ErrNotFound)
		}
		if err := p.removeRoute(ctx, id, n, attrs["destination"], attrs["gateway"]); err != nil {
			return state.Record{}, err
		}
		if err := p.setNetworkLabel(ctx, n, routeLabelPrefix+id.Name, ""); err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		return state.Record{}, nil
	}
	return state.Record{}, &provider.Error{ID: id, Op: string(op.Op), Err: fmt.Errorf("unknown operation")}
}

func (p *Provider) addRoute(ctx context.Context, id graph.Identity, n *hcloud.Network, destination, gateway string) error {
	_, dest, err := net.ParseCIDR(destination)
	if err != nil {
		return &provider.Error{ID: id, Op: "create", Err: err}
	}
	gw := net.ParseIP(gateway)
	if gw == nil {
		return &provider.Error{ID: id, Op: "create", Err: fmt.Errorf("invalid gateway %q", gateway)}
	}
	_, _, err = p.networks.AddRoute(ctx, n, hcloud.NetworkAddRouteOpts{
		Route: hcloud.NetworkRoute{Destination: dest, Gateway: gw},
	})
	if err != nil {
		return wrapErr(id, "create", err)
	}
	return p.setNetworkLabel(ctx, n, routeLabelPrefix+id.Name, encodeRoute(destination, gateway))
}

func (p *Provider) removeRoute(ctx context.Context, id graph.Identity, n *hcloud.Network, destination, gateway string) error {
	_, dest, err := net.ParseCIDR(destination)
	if err != nil {
		return &provider.Error{ID: id, Op: "delete", Err: err}
	}
	_, _, err = p.networks.DeleteRoute(ctx, n, hcloud.NetworkDeleteRouteOpts{
		Route: hcloud.NetworkRoute{Destination: dest, Gateway: net.ParseIP(gateway)},
	})
	if err != nil && !isNotFound(err) {
		return wrapErr(id, "delete", err)
	}
	return nil
}
