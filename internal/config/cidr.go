package config

import (
	"encoding/binary"
	"fmt"
	"net"
)

// SubnetRange returns the index-th subnet of the given prefix length inside
// prefix, e.g. SubnetRange("10.0.0.0/16", 24, 2) == "10.0.2.0/24". It is
// used to auto-assign ranges to subnets declared without one.
//
// Only IPv4 prefixes are supported.
func SubnetRange(prefix string, newPrefixLen, index int) (string, error) {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	ip4 := network.IP.To4()
	if ip4 == nil {
		return "", fmt.Errorf("only IPv4 prefixes are supported: %s", prefix)
	}

	maskLen, bits := network.Mask.Size()
	if newPrefixLen <= maskLen || newPrefixLen > bits {
		return "", fmt.Errorf("prefix length /%d does not fit inside %s", newPrefixLen, prefix)
	}

	maxSubnets := 1 << (newPrefixLen - maskLen)
	if index < 0 || index >= maxSubnets {
		return "", fmt.Errorf("subnet index %d exceeds the %d subnets of %s at /%d",
			index, maxSubnets, prefix, newPrefixLen)
	}

	base := binary.BigEndian.Uint32(ip4)
	// #nosec G115
	base += uint32(index) << (bits - newPrefixLen)

	out := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(out, base)
	return fmt.Sprintf("%s/%d", out, newPrefixLen), nil
}

// validCIDR reports whether s parses as an IPv4 CIDR.
func validCIDR(s string) bool {
	ip, _, err := net.ParseCIDR(s)
	return err == nil && ip.To4() != nil
}

// validIP reports whether s parses as an IPv4 address.
func validIP(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
