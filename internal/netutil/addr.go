// ABOUTME: Local network address discovery for LAN advertisement and default-address selection
// ABOUTME: Grounded on the teacher's getLocalIPs but extended with spec.md §6's private-range preference
package netutil

import (
	"fmt"
	"net"
)

// privateBlocks are the RFC1918 ranges spec.md §6 wants preferred when a
// host has several addresses (VPNs and public interfaces show up too).
var privateBlocks = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
}

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IsPrivate reports whether ip falls in an RFC1918 private range.
func IsPrivate(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// ListAddresses returns every non-loopback IPv4 address bound to an up
// interface; an interface with several IPv4 addresses contributes each.
func ListAddresses() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netutil: list interfaces: %w", err)
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				ips = append(ips, v4)
			}
		}
	}

	return ips, nil
}

// SelectDefault picks the address a server should advertise when none is
// configured explicitly: the first private-range address, or the first
// address found if none is private. Returns an error if the host has no
// usable address at all.
func SelectDefault() (net.IP, error) {
	ips, err := ListAddresses()
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("netutil: no non-loopback IPv4 address found")
	}
	return pickDefault(ips), nil
}

// pickDefault returns the first private-range address in ips, or ips[0] if
// none is private. ips must be non-empty.
func pickDefault(ips []net.IP) net.IP {
	for _, ip := range ips {
		if IsPrivate(ip) {
			return ip
		}
	}
	return ips[0]
}
