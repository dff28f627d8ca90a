package outnet

import "net/netip"

// Status is the completion status delivered to a query's callback.
type Status int

const (
	// StatusOK means a reply was received and passed the identity checks.
	StatusOK Status = iota

	// StatusTimeout means the timer expired before a matching reply arrived.
	StatusTimeout

	// StatusClosed means the query could not be sent: the packet was
	// shorter than the two-byte ID or the destination address was
	// invalid, the send failed, no egress socket of the
	// destination's family exists, the ID space was exhausted, or the
	// dispatcher was already closed.
	StatusClosed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Reply describes a received answer. It is only passed on StatusOK.
//
// Data aliases the receiving socket's buffer and is valid until the
// callback returns. Callers that need the datagram afterwards must copy it.
type Reply struct {
	// Src is the address the datagram came from.
	Src netip.AddrPort

	// Data is the raw datagram.
	Data []byte
}

// Callback receives the outcome of a submitted query. It is invoked
// exactly once per query, on the dispatcher's event loop goroutine, with
// reply non-nil only on StatusOK. A query that was cancelled or abandoned
// by Close gets no callback at all.
type Callback func(status Status, reply *Reply, arg interface{})
