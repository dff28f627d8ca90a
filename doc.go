// Copyright 2025 Bruno Schaatsbergen. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package outnet sends DNS queries to authoritative name servers over UDP
// and matches the asynchronous replies back to their submitters.
//
// A Dispatcher owns a pool of pre-bound UDP sockets per address family and
// an index of in-flight queries keyed by transaction ID and destination
// address. Every query is sent with a fresh random ID from a randomly
// chosen socket, so an off-path attacker has to guess the ID, the
// destination tuple and the source port to forge a reply. Replies that
// match no in-flight query, or that arrive on a socket other than the one
// the query left on, are dropped.
//
// # Usage
//
//	d, err := outnet.New(
//	    outnet.WithPortsPerFamily(64),
//	    outnet.WithIPv6(false),
//	)
//	if err != nil {
//	    // handle construction failure
//	}
//	defer d.Close()
//
//	d.Submit(packet, dest, 3*time.Second, func(status outnet.Status, reply *outnet.Reply, arg interface{}) {
//	    // exactly one invocation per query: StatusOK, StatusTimeout or StatusClosed
//	}, nil)
//
// Completion callbacks run serially on the dispatcher's event loop
// goroutine. It is safe to call Submit and Cancel from inside a callback.
// Multi-core deployments should create one Dispatcher per worker rather
// than sharing one.
package outnet
