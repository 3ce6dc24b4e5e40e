package utils

import (
	"net"
	"sort"
)

// LocalAddresses lists the IP addresses of every local interface plus the
// wildcard 0.0.0.0, sorted for a stable menu order.
func LocalAddresses() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{"0.0.0.0": {}}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		seen[ipNet.IP.String()] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for ip := range seen {
		result = append(result, ip)
	}
	sort.Strings(result)
	return result, nil
}
