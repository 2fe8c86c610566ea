// Package network provides small host-networking helpers used to default
// a speaker's router ID and to describe the two ends of a peer connection.
package network

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/transitorykris/bgpd/bgp"
)

// FindIdentifier picks a BGP Identifier from the host's configured
// interfaces when a speaker is not given an explicit router ID. The
// selection is arbitrary among global-unicast IPv4 addresses: the first
// one found wins.
func FindIdentifier() (bgp.Identifier, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	for _, v := range ifs {
		addrs, err := v.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			if ip.To4() == nil {
				continue
			}
			if ip.IsGlobalUnicast() {
				return bgp.NewIdentifier(ip)
			}
		}
	}
	return 0, fmt.Errorf("network: no usable IPv4 address found for a BGP identifier")
}

// SplitHostPort splits a dotted "host:port" address, defaulting port to 0
// if it is missing or unparsable.
func SplitHostPort(a net.Addr) (string, uint16) {
	parts := strings.Split(a.String(), ":")
	if len(parts) < 2 {
		return parts[0], 0
	}
	host := strings.Join(parts[:len(parts)-1], ":")
	port, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		port = 0
	}
	return host, uint16(port)
}
