package hcloud

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/fwmesh/fwmesh/internal/graph"
	"github.com/fwmesh/fwmesh/internal/provider"
	"github.com/fwmesh/fwmesh/internal/state"
)

// Each declared rule becomes its own firewall object applied to the servers
// of the rule's network via label selector.

func (p *Provider) fetchFirewallRule(ctx context.Context, id graph.Identity) (state.Record, error) {
	fw, _, err := p.firewalls.GetByName(ctx, id.Name)
	if err != nil {
		return state.Record{}, wrapErr(id, "fetch", err)
	}
	if fw == nil {
		return state.Record{}, fmt.Errorf("firewall %s: %w", id.Name, provider.ErrNotFound)
	}
	return firewallRecord(id, fw), nil
}

func firewallRecord(id graph.Identity, fw *hcloud.Firewall) state.Record {
	attrs := map[string]string{"network": fw.Labels[labelNetwork]}
	if len(fw.Rules) > 0 {
		r := fw.Rules[0]
		attrs["direction"] = string(r.Direction)
		attrs["protocol"] = string(r.Protocol)
		if r.Port != nil {
			attrs["port"] = *r.Port
		}
		ips := r.SourceIPs
		if r.Direction == hcloud.FirewallRuleDirectionOut {
			ips = r.DestinationIPs
		}
		if len(ips) > 0 {
			ranges := make([]string, len(ips))
			for i, ipNet := range ips {
				ranges[i] = ipNet.String()
			}
			attrs["source_ranges"] = strings.Join(ranges, ",")
		}
	}
	return state.Record{
		ID:         id,
		ProviderID: strconv.FormatInt(fw.ID, 10),
		Attrs:      attrs,
	}
}

func buildRule(id graph.Identity, attrs map[string]string) (hcloud.FirewallRule, error) {
	rule := hcloud.FirewallRule{
		Direction: hcloud.FirewallRuleDirection(attrs["direction"]),
		Protocol:  hcloud.FirewallRuleProtocol(attrs["protocol"]),
	}
	if port := attrs["port"]; port != "" {
		rule.Port = hcloud.Ptr(port)
	}
	if ranges := attrs["source_ranges"]; ranges != "" {
		var ips []net.IPNet
		for _, cidr := range strings.Split(ranges, ",") {
			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				return rule, &provider.Error{ID: id, Op: "create", Err: err}
			}
			ips = append(ips, *ipNet)
		}
		if rule.Direction == hcloud.FirewallRuleDirectionOut {
			rule.DestinationIPs = ips
		} else {
			rule.SourceIPs = ips
		}
	}
	return rule, nil
}

func (p *Provider) applyFirewallRule(ctx context.Context, op provider.Operation) (state.Record, error) {
	id := op.ID()
	switch op.Op {
	case provider.OpCreate:
		attrs := op.Node.Attrs
		rule, err := buildRule(id, attrs)
		if err != nil {
			return state.Record{}, err
		}
		labels := managedLabels()
		labels[labelNetwork] = attrs["network"]
		result, _, err := p.firewalls.Create(ctx, hcloud.FirewallCreateOpts{
			Name:   id.Name,
			Labels: labels,
			Rules:  []hcloud.FirewallRule{rule},
			ApplyTo: []hcloud.FirewallResource{{
				Type: hcloud.FirewallResourceTypeLabelSelector,
				LabelSelector: &hcloud.FirewallResourceLabelSelector{
					Selector: labelNetwork + "=" + attrs["network"],
				},
			}},
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "create", err)
		}
		return firewallRecord(id, result.Firewall), nil

	case provider.OpUpdate:
		attrs := op.Node.Attrs
		fw, _, err := p.firewalls.GetByName(ctx, id.Name)
		if err != nil {
			return state.Record{}, wrapErr(id, "update", err)
		}
		if fw == nil {
			return state.Record{}, fmt.Errorf("firewall %s: %w", id.Name, provider.ErrNotFound)
		}
		rule, err := buildRule(id, attrs)
		if err != nil {
			return state.Record{}, err
		}
		_, _, err = p.firewalls.SetRules(ctx, fw, hcloud.FirewallSetRulesOpts{
			Rules: []hcloud.FirewallRule{rule},
		})
		if err != nil {
			return state.Record{}, wrapErr(id, "update", err)
		}
		fw.Rules = []hcloud.FirewallRule{rule}
		return firewallRecord(id, fw), nil

	case provider.OpDelete:
		fw, _, err := p.firewalls.GetByName(ctx, id.Name)
		if err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		if fw == nil {
			return state.Record{}, fmt.Errorf("firewall %s: %w", id.Name, provider.ErrNotFound)
		}
		if _, err := p.firewalls.Delete(ctx, fw); err != nil {
			return state.Record{}, wrapErr(id, "delete", err)
		}
		return state.Record{}, nil
	}
	return state.Record{}, &provider.Error{ID: id, Op: string(op.Op), Err: fmt.Errorf("unknown operation")}
}
