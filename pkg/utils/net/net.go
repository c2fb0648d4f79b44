package netutil

import (
	"net/netip"
)

// Prefix masks an address to the network a household or office usually
// shares: /24 for IPv4 and /64 for IPv6. It returns "" for unparsable input.
func Prefix(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 64
	if addr.Is4() {
		bits = 24
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return p.String()
}

// SameNetwork reports whether two addresses share a Prefix. Unknown
// addresses never match.
func SameNetwork(ip1, ip2 string) bool {
	a, b := Prefix(ip1), Prefix(ip2)
	return a != "" && a == b
}
