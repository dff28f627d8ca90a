// Copyright 2025 Bruno Schaatsbergen. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package outnet

import (
	"bytes"
	"net/netip"

	"github.com/google/btree"
)

// pendingKey identifies one in-flight query: the 16-bit transaction ID
// plus the destination address and port. No two live queries share a key.
type pendingKey struct {
	id   uint16
	addr netip.AddrPort
}

// normalize strips the IPv4-in-IPv6 mapping so that a key built from a
// caller-supplied destination compares equal to one built from the source
// address of the reply datagram.
func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

func addrLen(a netip.Addr) int {
	if a.Is4() {
		return 4
	}
	return 16
}

// less is a total order over keys: ID, then address length, then port,
// then raw address bytes. With netip the address length determines the
// family, so the two steps coincide. Only totality matters here; the
// index never interprets the order.
func (k pendingKey) less(o pendingKey) bool {
	if k.id != o.id {
		return k.id < o.id
	}
	ka, oa := k.addr.Addr(), o.addr.Addr()
	kl, ol := addrLen(ka), addrLen(oa)
	if kl != ol {
		return kl < ol
	}
	if k.addr.Port() != o.addr.Port() {
		return k.addr.Port() < o.addr.Port()
	}
	if kl == 4 {
		a, b := ka.As4(), oa.As4()
		return bytes.Compare(a[:], b[:]) < 0
	}
	a, b := ka.As16(), oa.As16()
	return bytes.Compare(a[:], b[:]) < 0
}

// pendingIndex is the ordered set of in-flight queries. It is touched
// only from the dispatcher's event loop goroutine.
type pendingIndex struct {
	tree *btree.BTreeG[*Pending]
}

func newPendingIndex() *pendingIndex {
	return &pendingIndex{
		tree: btree.NewG(16, func(a, b *Pending) bool {
			return a.key().less(b.key())
		}),
	}
}

// insert adds p to the index. It fails when a query with the same key is
// already present; the submitter then retries with a fresh ID.
func (x *pendingIndex) insert(p *Pending) bool {
	if _, ok := x.tree.Get(p); ok {
		return false
	}
	x.tree.ReplaceOrInsert(p)
	return true
}

// lookup finds the in-flight query matching a reply's key, if any.
func (x *pendingIndex) lookup(k pendingKey) (*Pending, bool) {
	return x.tree.Get(&Pending{id: k.id, addr: k.addr})
}

func (x *pendingIndex) remove(p *Pending) {
	x.tree.Delete(p)
}

func (x *pendingIndex) len() int {
	return x.tree.Len()
}

// drain visits every entry and then discards the whole tree in one go,
// for shutdown. Entries are not unlinked one at a time.
func (x *pendingIndex) drain(fn func(*Pending)) {
	x.tree.Ascend(func(p *Pending) bool {
		fn(p)
		return true
	})
	x.tree.Clear(false)
}
