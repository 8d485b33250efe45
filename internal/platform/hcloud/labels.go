package hcloud

import "strings"

// Label keys used for bookkeeping on cloud objects. Subnets and routes are
// unnamed entries inside their parent network, so their fwmesh names live in
// network labels; the values encode the entry they refer to with "/" and " "
// replaced to satisfy the label charset.
const (
	labelManaged = "fwmesh.io/managed"
	labelZone    = "fwmesh.io/zone"
	labelNetwork = "fwmesh.io/network"
	labelSubnet  = "fwmesh.io/subnet"
	labelImage   = "fwmesh.io/image"
	labelGroup   = "fwmesh.io/group"

	subnetLabelPrefix = "fwmesh.io/subnet."
	routeLabelPrefix  = "fwmesh.io/route."

	managedSelector = labelManaged + "=true"
)

func managedLabels() map[string]string {
	return map[string]string{labelManaged: "true"}
}

// encodeCIDR turns "10.0.0.0/24" into the label-safe "10.0.0.0-24".
func encodeCIDR(cidr string) string {
	return strings.ReplaceAll(cidr, "/", "-")
}

// decodeCIDR reverses encodeCIDR. Only the final "-" separates the prefix
// length, so IPv4 ranges round-trip unambiguously.
func decodeCIDR(s string) string {
	i := strings.LastIndex(s, "-")
	if i < 0 {
		return s
	}
	return s[:i] + "/" + s[i+1:]
}

// encodeRoute packs destination and gateway into one label value.
func encodeRoute(destination, gateway string) string {
	return encodeCIDR(destination) + "_" + gateway
}

// decodeRoute reverses encodeRoute.
func decodeRoute(s string) (destination, gateway string, ok bool) {
	dest, gw, found := strings.Cut(s, "_")
	if !found {
		return "", "", false
	}
	return decodeCIDR(dest), gw, true
}
