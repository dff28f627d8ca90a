package outnet

import (
	"net/netip"
	"time"
)

// Pending is the record of one in-flight UDP query awaiting its reply or
// timeout. The dispatcher owns it; the index holds it by key and the
// timer holds a non-owning reference. It is in the index from registration
// until the query completes, is cancelled or is abandoned by Close.
//
// All fields except addr, cb, arg, packet, timeout and d are written only
// by the event loop goroutine.
type Pending struct {
	id   uint16
	addr netip.AddrPort

	// sock is the egress socket the query left on. A reply is only
	// accepted when it arrives on this same socket.
	sock *socket

	timer *time.Timer

	cb  Callback
	arg interface{}

	// packet is the dispatcher's private copy of the query, with the
	// transaction ID patched into bytes 0 and 1.
	packet  []byte
	timeout time.Duration

	d *Dispatcher

	// done marks that the callback has been invoked or the query was
	// cancelled. A stale timer firing observes it and does nothing.
	done bool
}

func (p *Pending) key() pendingKey {
	return pendingKey{id: p.id, addr: p.addr}
}

// Addr returns the query's destination.
func (p *Pending) Addr() netip.AddrPort {
	return p.addr
}

// finish releases the query: unlink from the index when asked, stop the
// timer, and mark it done so no late timer event touches it again. It
// never invokes the callback; the reply and timeout paths do that first.
// Runs on the event loop goroutine only.
func (d *Dispatcher) finish(p *Pending, unlink bool) {
	if p == nil {
		return
	}
	if unlink {
		d.index.remove(p)
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done = true
}
