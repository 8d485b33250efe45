package hcloud

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

func algorithmType(algorithm string) hcloud.LoadBalancerAlgorithmType {
	if algorithm == "least_connections" {
		return hcloud.LoadBalancerAlgorithmTypeLeastConnections
	}
	return hcloud.LoadBalancerAlgorithmTypeRoundRobin
}

func (p *Provider) fetchLoadBalancer(ctx context.Context, id graph.Identity) (state.Record, error) {
	lb, _, err := p.loadBalancers.GetByName(ctx, id.Name)
	if err != nil {
		return state.Record{}, wrapErr(id, "fetch", err)
	}
	if lb == nil {
		return state.Record{}, fmt.Errorf("load balancer %s: %w", id.Name, provider.ErrNotFound)
	}
	return loadBalancerRecord(id, lb), nil
}

func loadBalancerRecord(id graph.Identity, lb *hcloud.LoadBalancer) state.Record {
	attrs := map[string]string{
		"zone":      lb.Labels[labelZone],
		"algorithm": string(lb.Algorithm.Type),
	}
	if lb.LoadBalancerType != nil {
		attrs["type"] = lb.LoadBalancerType.Name
	}
	for _, target := range lb.Targets {
		if target.Type == hcloud.LoadBalancerTargetTypeLabelSelector && target.LabelSelector != nil {
			attrs["group"] = strings.TrimPrefix(target.LabelSelector.Selector, labelGroup+"=")
		}
	}
	if len(lb.Services) > 0 {
		attrs["port"] = strconv.Itoa(lb.Services[0].ListenPort)
	}
	return state.Record{
		ID:         id,
		ProviderID: strconv.FormatInt(lb.ID, 10),
		Attrs:      attrs,
	}
}

func (p *Provider) applyLoadBalancer(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	switch op.Op {
	case provider.OpCreate:
		attrs := op.Node.Attrs
		port, err := strconv.Atoi(attrs["port"])
		if err != nil {
			return state.Record{}, &provider.Error{ID: id, Op: "create", Err: fmt.Errorf("invalid port %q", attrs["port"])}
		}
		labels := managedLabels()
		labels[labelZone] = attrs["zone"]
		result, _, err := p.loadBalancers.Create(ctx, hcloud.LoadBalancerCreateOpts{
			Name:             id.Name,
			LoadBalancerType: &hcloud.LoadBalancerType{Name: attrs["type"]},
			Algorithm:        &hcloud.LoadBalancerAlgorithm{Type: algorithmType(attrs["algorithm"])},
			Location:         location(attrs["zone"]),
			Labels:           labels,
			Services: []hcloud.LoadBalancerCreateOptsService{{
				Protocol:        hcloud.LoadBalancerServiceProtocolTCP,
				ListenPort:      hcloud.Ptr(port),
				DestinationPort: hcloud.Ptr(port),
			}},
			Targets: []hcloud.LoadBalancerCreateOptsTarget{{
				Type: hcloud.LoadBalancerTargetTypeLabelSelector,
				LabelSelector: hcloud.LoadBalancerCreateOptsTargetLabelSelector{
					Selector: labelGroup + "=" + attrs["group"],
				},
			}},
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "create", err)
		}
		return loadBalancerRecord(id, result.LoadBalancer), nil

	case provider.OpUpdate:
		return p.updateLoadBalancer(ctx, op)

	case provider.OpDelete:
		lb, _, err := p.loadBalancers.GetByName(ctx, id.Name)
		if err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		if lb == nil {
			return state.Record{}, fmt.Errorf("load balancer %s: %w", id.Name, provider.ErrNotFound)
		}
		if _, err := p.loadBalancers.Delete(ctx, lb); err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		return state.Record{}, nil
	}
	return state.Record{}, &provider.Error{ID: id, Op: string(op.Op), Err: fmt.Errorf("unknown operation")}
}

func (p *Provider) updateLoadBalancer(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	attrs := op.Node.Attrs
	prior := op.Prior.Attrs

	lb, _, err := p.loadBalancers.GetByName(ctx, id.Name)
	if err != nil {
		return state.Record{}, wrapErr(id, "update", err)
	}
	if lb == nil {
		return state.Record{}, fmt.Errorf("load balancer %s: %w", id.Name, provider.ErrNotFound)
	}

	if attrs["algorithm"] != prior["algorithm"] {
		_, _, err := p.loadBalancers.ChangeAlgorithm(ctx, lb, hcloud.LoadBalancerChangeAlgorithmOpts{
			Type: algorithmType(attrs["algorithm"]),
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "update", err)
		}
	}

	if attrs["port"] != prior["port"] {
		port, err := strconv.Atoi(attrs["port"])
		if err != nil {
			return state.Record{}, &provider.Error{ID: id, Op: "update", Err: fmt.Errorf("invalid port %q", attrs["port"])}
		}
		// The listen port identifies a service, so swap the service.
		if len(lb.Services) > 0 {
			_, _, err := p.loadBalancers.DeleteService(ctx, lb, lb.Services[0].ListenPort)
			if err != nil && !isNotFound(err) {
				return state.Record{}, wrapErr(id, "update", err)
			}
		}
		_, _, err = p.loadBalancers.AddService(ctx, lb, hcloud.LoadBalancerAddServiceOpts{
			Protocol:        hcloud.LoadBalancerServiceProtocolTCP,
			ListenPort:      hcloud.Ptr(port),
			DestinationPort: hcloud.Ptr(port),
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "update", err)
		}
	}

	if attrs["group"] != prior["group"] {
		if prior["group"] != "" {
			_, _, err := p.loadBalancers.RemoveLabelSelectorTarget(ctx, lb, labelGroup+"="+prior["group"])
			if err != nil && !isNotFound(err) {
				return state.Record{}, wrapErr(id, "update", err)
			}
		}
		_, _, err := p.loadBalancers.AddLabelSelectorTarget(ctx, lb, hcloud.LoadBalancerAddLabelSelectorTargetOpts{
			Selector: labelGroup + "=" + attrs["group"],
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "update", err)
		}
	}

	rec := loadBalancerRecord(id, lb)
	for _, field := range []string{"algorithm", "port", "group"} {
		rec.Attrs[field] = attrs[field]
	}
	return rec, nil
}
