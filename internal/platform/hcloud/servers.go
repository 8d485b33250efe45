package hcloud

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

// An instance group is the set of servers carrying its group label. Members
// are named <group>-<index> and recreated when server_type or image change.

func (p *Provider) groupServers(ctx context.Context, id graph.Identity) ([]*hcloud.Server, error) {
	servers, err := p.servers.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: labelGroup + "=" + id.Name},
	})
	if err != nil {
		return nil, wrapErr(id, "fetch", err)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

func (p *Provider) fetchInstanceGroup(ctx context.Context, id graph.Identity) (state.Record, error) {
	servers, err := p.groupServers(ctx, id)
	if err != nil {
		return state.Record{}, err
	}
	if len(servers) == 0 {
		return state.Record{}, fmt.Errorf("instance group %s: %w", id.Name, provider.ErrNotFound)
	}
	return groupRecord(id, servers), nil
}

func groupRecord(id graph.Identity, servers []*hcloud.Server) state.Record {
	first := servers[0]
	attrs := map[string]string{
		"subnet":  first.Labels[labelSubnet],
		"network": first.Labels[labelNetwork],
		"image":   first.Labels[labelImage],
		"zone":    first.Labels[labelZone],
		"size":    strconv.Itoa(len(servers)),
	}
	if first.ServerType != nil {
		attrs["server_type"] = first.ServerType.Name
	}
	ids := make([]string, len(servers))
	for i, s := range servers {
		ids[i] = strconv.FormatInt(s.ID, 10)
	}
	return state.Record{
		ID:         id,
		ProviderID: strings.Join(ids, ","),
		Attrs:      attrs,
	}
}

func (p *Provider) applyInstanceGroup(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	if op.Op == provider.OpDelete {
		servers, err := p.groupServers(ctx, id)
		if err != nil {
			return state.Record{}, err
		}
		if len(servers) == 0 {
			return state.Record{}, fmt.Errorf("instance group %s: %w", id.Name, provider.ErrNotFound)
		}
		for _, s := range servers {
			if _, _, err := p.servers.DeleteWithResult(ctx, s); err != nil && !isNotFound(err) {
				return state.Record{}, wrapErr(id, "delete", err)
			}
		}
		return state.Record{}, nil
	}

	attrs := op.Node.Attrs
	size, err := strconv.Atoi(attrs["size"])
	if err != nil || size < 1 {
		return state.Record{}, &provider.Error{ID: id, Op: string(op.Op), Err: fmt.Errorf("invalid size %q", attrs["size"])}
	}

	network, err := p.getNetwork(ctx, id, attrs["network"])
	if err != nil {
		return state.Record{}, err
	}

	existing, err := p.groupServers(ctx, id)
	if err != nil {
		return state.Record{}, err
	}

	// Drop members whose spec no longer matches, then converge on size.
	var kept []*hcloud.Server
	for _, s := range existing {
		stale := s.Labels[labelImage] != attrs["image"] ||
			s.ServerType == nil || s.ServerType.Name != attrs["server_type"]
		if stale || len(kept) >= size {
			if _, _, err := p.servers.DeleteWithResult(ctx, s); err != nil && !isNotFound(err) {
				return state.Record{}, wrapErr(id, op.Op, err)
			}
			continue
		}
		kept = append(kept, s)
	}

	taken := make(map[string]struct{}, len(kept))
	for _, s := range kept {
		taken[s.Name] = struct{}{}
	}
	for index := 0; len(kept) < size; index++ {
		name := fmt.Sprintf("%s-%d", id.Name, index)
		if _, ok := taken[name]; ok {
			continue
		}
		s, err := p.createGroupServer(ctx, id, name, attrs, network)
		if err != nil {
			return state.Record{}, err
		}
		kept = append(kept, s)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })
	return groupRecord(id, kept), nil
}

func (p *Provider) createGroupServer(ctx context.Context, id graph.Identity, name string, attrs map[string]string, network *hcloud.Network) (*hcloud.Server, error) {
	labels := managedLabels()
	labels[labelGroup] = id.Name
	labels[labelSubnet] = attrs["subnet"]
	labels[labelNetwork] = attrs["network"]
	labels[labelImage] = attrs["image"]
	labels[labelZone] = attrs["zone"]

	result, _, err := p.servers.Create(ctx, hcloud.ServerCreateOpts{
		Name:       name,
		ServerType: &hcloud.ServerType{Name: attrs["server_type"]},
		Image:      &hcloud.Image{Name: attrs["image"]},
		Location:   location(attrs["zone"]),
		Labels:     labels,
		Networks:   []*hcloud.Network{network},
		PublicNet: &hcloud.ServerCreatePublicNet{
			EnableIPv4: true,
			EnableIPv6: true,
		},
	})
	if err != nil {
		return nil, wrapErr(id, "create", err)
	}
	return result.Server, nil
}
