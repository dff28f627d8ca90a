// Copyright 2025 Bruno Schaatsbergen. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package outnet

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

var errNoEgress = errors.New("no egress socket for address family")

// listenFunc binds one UDP socket. It exists so tests can simulate bind
// failures; production use is net.ListenUDP.
type listenFunc func(network string, laddr *net.UDPAddr) (*net.UDPConn, error)

// socket is one bound UDP endpoint of the pool. Its index in the family
// slice is stable for the pool's lifetime.
type socket struct {
	conn *net.UDPConn

	// buf receives datagrams. The reader goroutine fills it and then
	// waits on processed until the event loop is finished with it, so
	// the bytes handed to a callback stay valid until the callback
	// returns.
	buf       []byte
	processed chan struct{}
}

// socketPool holds the bound UDP sockets the dispatcher sends from, one
// slice per address family. Per-query random selection across the pool is
// what adds source-port entropy on top of the 16-bit transaction ID.
type socketPool struct {
	ip4 []*socket
	ip6 []*socket
}

// isIP6Literal reports whether an interface string is an IPv6 literal.
func isIP6Literal(s string) bool {
	return strings.Contains(s, ":")
}

// newSocketPool binds portsPerFamily UDP sockets per enabled family. With
// a non-empty interface list, each interface literal of a family
// contributes portsPerFamily sockets of that family. A non-zero basePort
// makes successive bind attempts use consecutive port numbers; zero lets
// the OS pick ephemeral ports.
//
// Binding fewer sockets than requested is a construction failure: the
// partially built pool is torn down and an error returned. A short pool
// would silently shrink the entropy the pool exists to provide.
func newSocketPool(ifaces []string, portsPerFamily int, doIP4, doIP6 bool, basePort, bufsize int, listen listenFunc) (*socketPool, error) {
	sp := &socketPool{}

	if len(ifaces) == 0 {
		// Wildcard binds, IPv6 first. Both families are bound before
		// either count is checked.
		if doIP6 {
			sp.ip6 = makeRange("", "udp6", portsPerFamily, basePort, bufsize, listen)
		}
		if doIP4 {
			sp.ip4 = makeRange("", "udp4", portsPerFamily, basePort, bufsize, listen)
		}
		if (doIP4 && len(sp.ip4) != portsPerFamily) ||
			(doIP6 && len(sp.ip6) != portsPerFamily) {
			sp.close()
			return nil, fmt.Errorf("could not open all network side ports: got %d ip4 and %d ip6 of %d requested",
				len(sp.ip4), len(sp.ip6), portsPerFamily)
		}
		return sp, nil
	}

	var want4, want6 int
	for _, ifc := range ifaces {
		if isIP6Literal(ifc) {
			if doIP6 {
				want6 += portsPerFamily
				sp.ip6 = append(sp.ip6, makeRange(ifc, "udp6", portsPerFamily, basePort, bufsize, listen)...)
			}
		} else if doIP4 {
			want4 += portsPerFamily
			sp.ip4 = append(sp.ip4, makeRange(ifc, "udp4", portsPerFamily, basePort, bufsize, listen)...)
		}
	}
	if len(sp.ip4) != want4 || len(sp.ip6) != want6 {
		sp.close()
		return nil, fmt.Errorf("could not open all ports on all interfaces: got %d ip4 of %d, %d ip6 of %d",
			len(sp.ip4), want4, len(sp.ip6), want6)
	}
	return sp, nil
}

// makeRange attempts n binds on one interface and returns the sockets
// that succeeded. Failed binds are skipped. When a base port is given it
// advances by one between attempts whether or not the bind succeeded, so
// the range walked is the same on every run.
func makeRange(ifname, network string, n, basePort, bufsize int, listen listenFunc) []*socket {
	var ip net.IP
	if ifname != "" {
		ip = net.ParseIP(ifname)
		if ip == nil {
			return nil
		}
	}

	out := make([]*socket, 0, n)
	port := basePort
	for i := 0; i < n; i++ {
		attempt := 0
		if basePort != 0 {
			attempt = port
			port++
		}
		conn, err := listen(network, &net.UDPAddr{IP: ip, Port: attempt})
		if err != nil {
			continue
		}
		out = append(out, &socket{
			conn:      conn,
			buf:       make([]byte, bufsize),
			processed: make(chan struct{}, 1),
		})
	}
	return out
}

// pick chooses a uniformly random egress socket of the destination's
// family. The scaled multiply maps the 32-bit draw onto [0, n); the
// clamp keeps an edge-case rounding from escaping the slice.
func (sp *socketPool) pick(dest netip.AddrPort, rnd Rand) (*socket, error) {
	list := sp.ip4
	if dest.Addr().Unmap().Is6() {
		list = sp.ip6
	}
	n := len(list)
	if n == 0 {
		return nil, errNoEgress
	}
	idx := int(uint64(rnd.Uint32()) * uint64(n) >> 32)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return list[idx], nil
}

func (sp *socketPool) all() []*socket {
	out := make([]*socket, 0, len(sp.ip4)+len(sp.ip6))
	out = append(out, sp.ip4...)
	out = append(out, sp.ip6...)
	return out
}

// close shuts every socket in the pool, which also unblocks any reader
// goroutine parked in a receive on it.
func (sp *socketPool) close() {
	for _, s := range sp.all() {
		_ = s.conn.Close()
	}
}
