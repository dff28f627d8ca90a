package outnet

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"time"
)

// maxIDRetry is the number of failed index insertions, each with a freshly
// drawn transaction ID, after which the query is given up. The index would have to be
// nearly full of one destination for this to trigger; the bound only
// prevents livelock.
const maxIDRetry = 1000

// idSize is the width of the DNS transaction ID at the start of a
// datagram. No other bytes of the message are inspected or mutated.
const idSize = 2

var errIDRetry = errors.New("failed to generate unique query ID")

// Events posted to the dispatch loop. Everything that touches the index,
// the pendings or the pool selection runs on the loop goroutine, so none
// of that state needs a lock.
type (
	submitEvent  struct{ p *Pending }
	cancelEvent  struct{ p *Pending }
	timeoutEvent struct{ p *Pending }
	readEvent    struct {
		s   *socket
		n   int
		src netip.AddrPort
	}
	closeEvent struct{ done chan struct{} }
)

// run is the dispatch loop. Submissions, received datagrams, timer
// expirations and cancellations arrive through the queue and are handled
// one at a time, in arrival order.
func (d *Dispatcher) run() {
	for {
		select {
		case <-d.quit:
			return
		case <-d.events.Signal():
			for {
				e, ok := d.events.Next()
				if !ok {
					break
				}
				if d.handle(e) {
					d.drainQueue()
					return
				}
			}
		}
	}
}

// drainQueue flushes events that raced the shutdown. Submissions that
// never made it onto the loop report closed instead of vanishing.
func (d *Dispatcher) drainQueue() {
	for {
		e, ok := d.events.Next()
		if !ok {
			return
		}
		if se, ok := e.(*submitEvent); ok {
			se.p.done = true
			se.p.cb(StatusClosed, nil, se.p.arg)
		}
	}
}

// handle dispatches one event. It returns true when the loop should end.
func (d *Dispatcher) handle(e interface{}) bool {
	switch ev := e.(type) {
	case *submitEvent:
		d.handleSubmit(ev.p)
	case *readEvent:
		d.handleRead(ev)
	case *timeoutEvent:
		d.handleTimeout(ev.p)
	case *cancelEvent:
		d.handleCancel(ev.p)
	case *closeEvent:
		d.handleClose()
		close(ev.done)
		return true
	}
	return false
}

// handleSubmit registers a query, sends it and arms its timer.
func (d *Dispatcher) handleSubmit(p *Pending) {
	// Pick a transaction ID and claim it in the index. A collision with
	// a live query to the same destination means the ID is regenerated,
	// with the same discard-low-byte policy, and the packet re-patched.
	p.id = queryID(d.rand)
	binary.BigEndian.PutUint16(p.packet[:idSize], p.id)
	tries := 0
	for !d.index.insert(p) {
		tries++
		if tries == maxIDRetry {
			d.logger.Error("giving up on query, ID space exhausted", errIDRetry,
				Field{"addr", p.addr})
			p.done = true
			p.cb(StatusClosed, nil, p.arg)
			return
		}
		p.id = queryID(d.rand)
		binary.BigEndian.PutUint16(p.packet[:idSize], p.id)
	}
	d.logger.Debug("inserted new pending reply",
		Field{"id", p.id},
		Field{"addr", p.addr})

	s, err := d.pool.pick(p.addr, d.rand)
	if err != nil {
		d.index.remove(p)
		d.logger.Error("need to send query but have no ports of that family", err,
			Field{"addr", p.addr})
		p.done = true
		p.cb(StatusClosed, nil, p.arg)
		return
	}
	p.sock = s

	if _, err := s.conn.WriteToUDPAddrPort(p.packet, p.addr); err != nil {
		d.logger.Error("udp send failed", err, Field{"addr", p.addr})
		p.cb(StatusClosed, nil, p.arg)
		d.finish(p, true)
		return
	}

	// The timer is armed after the send so scheduling delay on the send
	// path does not inflate the measured round trip.
	p.timer = time.AfterFunc(p.timeout, func() {
		d.events.Append(&timeoutEvent{p: p})
	})
}

// handleRead correlates one received datagram with an in-flight query.
func (d *Dispatcher) handleRead(ev *readEvent) {
	s := ev.s

	// The reader goroutine is parked until the loop is done with the
	// socket's buffer. Release it once the callback has returned.
	defer func() {
		select {
		case s.processed <- struct{}{}:
		default:
		}
	}()

	if ev.n < idSize {
		d.logger.Debug("short datagram. dropped.", Field{"addr", ev.src})
		return
	}
	key := pendingKey{
		id:   binary.BigEndian.Uint16(s.buf[:idSize]),
		addr: normalize(ev.src),
	}
	d.logger.Debug("incoming reply",
		Field{"id", key.id},
		Field{"addr", key.addr},
		Field{"pending", d.index.len()})

	p, ok := d.index.lookup(key)
	if !ok {
		d.drops.unsolicited(d.logger, key)
		return
	}

	// The key can be guessed; the egress socket cannot. A datagram that
	// matches the key but arrived on a different socket than the query
	// left on is a spoof (or a grossly misrouted reply) and is dropped.
	if p.sock != s {
		d.drops.wrongPort(d.logger, key)
		return
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.cb(StatusOK, &Reply{Src: ev.src, Data: s.buf[:ev.n]}, p.arg)
	d.finish(p, true)
}

// handleTimeout completes a query whose timer fired before its reply.
func (d *Dispatcher) handleTimeout(p *Pending) {
	// The reply may have won the race while this event sat in the queue.
	if p.done {
		return
	}
	d.logger.Debug("timeout udp", Field{"id", p.id}, Field{"addr", p.addr})
	d.drops.timedOut(p.key())
	p.cb(StatusTimeout, nil, p.arg)
	d.finish(p, true)
}

// handleCancel withdraws a query without invoking its callback.
func (d *Dispatcher) handleCancel(p *Pending) {
	if p == nil || p.done {
		return
	}
	d.finish(p, true)
}

// handleClose abandons all outstanding queries without callbacks, closes
// every pool socket and releases the loop. Callers still holding Pending
// handles are expected to have cancelled or accepted abandonment.
func (d *Dispatcher) handleClose() {
	d.index.drain(func(p *Pending) {
		d.finish(p, false)
	})
	d.pool.close()
	close(d.quit)
}

// readLoop receives datagrams on one pool socket and hands them to the
// dispatch loop. After posting an event it waits for the loop to finish
// with the socket's buffer before receiving into it again.
func (d *Dispatcher) readLoop(s *socket) {
	for {
		n, src, err := s.conn.ReadFromUDPAddrPort(s.buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient receive errors (e.g. ICMP port unreachable
			// surfacing on the socket) do not kill the reader.
			continue
		}
		d.events.Append(&readEvent{s: s, n: n, src: src})
		select {
		case <-s.processed:
		case <-d.quit:
			return
		}
	}
}
