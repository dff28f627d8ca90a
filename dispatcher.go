package outnet

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/caffix/queue"
)

// Dispatcher sends DNS queries over UDP and correlates the asynchronous
// replies back to their submitters. It owns the socket pool, the index of
// in-flight queries and the timeout machinery.
//
// All completion callbacks run serially on one event loop goroutine, so a
// callback never races another and may itself call Submit or Cancel.
// Create one Dispatcher per worker; the instances share nothing.
type Dispatcher struct {
	// index holds the in-flight queries, keyed by (ID, destination).
	index *pendingIndex

	// pool is the set of pre-bound egress sockets, per address family.
	pool *socketPool

	// events feeds the dispatch loop. Unbounded, so posting from inside
	// a callback can never deadlock the loop.
	events queue.Queue

	rand   Rand
	logger Logger
	drops  *dropLog

	quit   chan struct{}
	closed atomic.Bool

	// construction knobs, set by options
	portsPerFamily int
	ifaces         []string
	doIP4          bool
	doIP6          bool
	basePort       int
	bufSize        int
	listen         listenFunc
}

// New constructs a Dispatcher and binds its socket pool.
//
// Default configuration:
//
//   - 16 ports per address family, OS-chosen port numbers
//   - both IPv4 and IPv6 enabled, wildcard binds
//   - 4096-byte receive buffers
//   - no-op logger
//   - ChaCha8 ID generator seeded from the OS entropy pool
//
// Binding fewer sockets than requested is a construction failure: the
// partial pool is torn down and the error returned.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		index:          newPendingIndex(),
		logger:         noopLogger{},
		drops:          newDropLog(),
		portsPerFamily: 16,
		doIP4:          true,
		doIP6:          true,
		bufSize:        4096,
		listen:         net.ListenUDP,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.rand == nil {
		r, err := newChaChaRand()
		if err != nil {
			return nil, fmt.Errorf("outnet: %w", err)
		}
		d.rand = r
	}

	pool, err := newSocketPool(d.ifaces, d.portsPerFamily, d.doIP4, d.doIP6, d.basePort, d.bufSize, d.listen)
	if err != nil {
		return nil, fmt.Errorf("outnet: %w", err)
	}
	d.pool = pool

	d.events = queue.NewQueue()
	d.quit = make(chan struct{})
	for _, s := range pool.all() {
		go d.readLoop(s)
	}
	go d.run()
	return d, nil
}

// Submit queues one UDP query to dest and returns a handle usable with
// Cancel. The packet's first two bytes are the DNS transaction ID slot;
// the dispatcher copies the packet and patches a fresh random ID into the
// copy, so the caller's buffer is never mutated and may be reused
// immediately.
//
// The callback must not be nil. It fires exactly once, on the event loop goroutine, with
// StatusOK, StatusTimeout or StatusClosed, unless the query is cancelled
// or the dispatcher shut down first. There is no retry: a timeout is
// surfaced to the caller, who decides whether to reissue or fall back.
//
// A submission racing Close may be abandoned without a callback, like any
// other outstanding query.
func (d *Dispatcher) Submit(packet []byte, dest netip.AddrPort, timeout time.Duration, cb Callback, arg interface{}) *Pending {
	if d.closed.Load() || len(packet) < idSize || !dest.IsValid() {
		cb(StatusClosed, nil, arg)
		return nil
	}
	buf := make([]byte, len(packet))
	copy(buf, packet)
	p := &Pending{
		addr:    normalize(dest),
		cb:      cb,
		arg:     arg,
		packet:  buf,
		timeout: timeout,
		d:       d,
	}
	d.events.Append(&submitEvent{p: p})
	return p
}

// Cancel withdraws an in-flight query. Its callback is not invoked, now
// or later. Cancelling a query that already completed is a no-op.
func (d *Dispatcher) Cancel(p *Pending) {
	if p == nil || d.closed.Load() {
		return
	}
	d.events.Append(&cancelEvent{p: p})
}

// Close shuts the dispatcher down: outstanding queries are abandoned
// without callbacks, every pool socket is closed and the event loop ends.
// It is idempotent and returns once the loop has finished.
func (d *Dispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	done := make(chan struct{})
	d.events.Append(&closeEvent{done: done})
	<-done
	return nil
}
