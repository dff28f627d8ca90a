package outnet

// Option is a function that configures a Dispatcher.
//
// This package uses the functional options pattern: New() alone gives a
// working dispatcher, and each option adjusts one knob without breaking
// existing callers when new options appear.
type Option func(*Dispatcher)

// WithPortsPerFamily sets how many UDP sockets to bind per enabled
// address family (per interface, when interfaces are given).
//
// The pool size is part of the spoofing defense: each query leaves from a
// randomly chosen socket, so n ports add log2(n) bits of source-port
// entropy on top of the 16-bit transaction ID. Typical deployments use
// 16 to 256 ports per worker.
//
// Default is 16. Values below 1 are ignored.
func WithPortsPerFamily(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.portsPerFamily = n
		}
	}
}

// WithInterfaces restricts binding to the given local addresses, given as
// IP literals (e.g. "192.0.2.10", "2001:db8::10"). Each literal
// contributes a full set of ports of its family. An empty list, the
// default, binds to the wildcard address.
func WithInterfaces(addrs ...string) Option {
	return func(d *Dispatcher) {
		d.ifaces = append(d.ifaces, addrs...)
	}
}

// WithIPv4 enables or disables the IPv4 half of the pool. Default is
// enabled. Submitting to an IPv4 destination with IPv4 disabled reports
// StatusClosed through the callback.
func WithIPv4(enabled bool) Option {
	return func(d *Dispatcher) {
		d.doIP4 = enabled
	}
}

// WithIPv6 enables or disables the IPv6 half of the pool. Default is
// enabled. Disable it on hosts without IPv6 connectivity, or the
// wildcard binds may fail and construction with them.
func WithIPv6(enabled bool) Option {
	return func(d *Dispatcher) {
		d.doIP6 = enabled
	}
}

// WithBasePort makes bind attempts walk a fixed port range starting at
// base instead of asking the OS for ephemeral ports. Each attempt uses
// the next port number. Useful when a firewall only passes a known
// outbound range, and for giving each worker a disjoint range.
//
// Default is 0, meaning OS-chosen ports.
func WithBasePort(base int) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.basePort = base
		}
	}
}

// WithBufferSize sets the per-socket receive buffer size in bytes.
// Replies longer than this are truncated by the kernel. Default is 4096,
// which covers common EDNS payload sizes.
func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bufSize = n
		}
	}
}

// WithLogger sets a custom logger for debugging and monitoring. The
// dispatcher logs registrations, drops (unsolicited, wrong port, late)
// and send failures. Default is a no-op logger.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRand replaces the transaction ID and port selection randomness
// source. The default is a ChaCha8 generator seeded from the OS entropy
// pool. Replacements must be unpredictable to off-path attackers; this
// option exists mainly for tests.
func WithRand(r Rand) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.rand = r
		}
	}
}
