// Command outdig sends a single DNS query through an outnet Dispatcher
// and prints the decoded response. The server must be given as an IP
// address; outdig talks to one server directly and does no recursion of
// its own.
//
//	outdig -server 9.9.9.9 -name example.com -type AAAA
package main

import (
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/bschaatsbergen/outnet"
)

func main() {
	server := flag.String("server", "9.9.9.9", "DNS server IP address, with optional :port")
	name := flag.String("name", "example.com", "name to query")
	qtype := flag.String("type", "A", "query type (A, AAAA, MX, TXT, ...)")
	timeout := flag.Duration("timeout", 3*time.Second, "query timeout")
	ports := flag.Int("ports", 16, "UDP ports to bind per address family")
	only4 := flag.Bool("4", false, "bind IPv4 egress sockets only")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	addr := *server
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}
	dest, err := netip.ParseAddrPort(addr)
	if err != nil {
		log.WithError(err).Fatalf("server must be an IP address, got %q", *server)
	}

	t, ok := dns.StringToType[strings.ToUpper(*qtype)]
	if !ok {
		log.Fatalf("unknown query type %q", *qtype)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(*name), t)
	m.RecursionDesired = true
	packet, err := m.Pack()
	if err != nil {
		log.WithError(err).Fatal("packing query")
	}

	opts := []outnet.Option{
		outnet.WithPortsPerFamily(*ports),
		outnet.WithLogger(outnet.NewLogrusLogger(log)),
	}
	if *only4 || dest.Addr().Unmap().Is4() {
		opts = append(opts, outnet.WithIPv6(false))
	}

	d, err := outnet.New(opts...)
	if err != nil {
		log.WithError(err).Fatal("creating dispatcher")
	}
	defer d.Close()

	done := make(chan *dns.Msg, 1)
	d.Submit(packet, dest, *timeout, func(status outnet.Status, reply *outnet.Reply, _ interface{}) {
		switch status {
		case outnet.StatusOK:
			// The reply buffer is only valid inside the callback, so
			// decode before handing it over.
			resp := new(dns.Msg)
			if err := resp.Unpack(reply.Data); err != nil {
				log.WithError(err).Error("undecodable reply")
				done <- nil
				return
			}
			done <- resp
		case outnet.StatusTimeout:
			log.Errorf("no reply from %s within %s", dest, *timeout)
			done <- nil
		default:
			log.Errorf("query to %s failed", dest)
			done <- nil
		}
	}, nil)

	resp := <-done
	if resp == nil {
		os.Exit(1)
	}
	fmt.Println(resp)
}
