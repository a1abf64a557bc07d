package authns

import "net"

func mustParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("authns: invalid static IP literal " + s)
	}
	return ip.To4()
}
