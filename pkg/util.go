package protocol

import (
	"net"
	"net/netip"
)

// ConvertToAddrPort extracts an IPv4 address and port from a socket address.
// Anything that is not IPv4 maps to 0.0.0.0.
func ConvertToAddrPort(addr net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	switch a := addr.(type) {
	case *net.UDPAddr:
		if a != nil {
			ap = a.AddrPort()
		}
	case nil:
	default:
		ap, _ = netip.ParseAddrPort(a.String())
	}
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		ip = netip.IPv4Unspecified()
	}
	return netip.AddrPortFrom(ip, ap.Port())
}

func formatAddr(addr net.Addr) string {
	if addr == nil {
		return "*"
	}
	return addr.String()
}
