package outnet

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(t *testing.T, id uint16, addr string) pendingKey {
	t.Helper()
	ap, err := netip.ParseAddrPort(addr)
	require.NoError(t, err)
	return pendingKey{id: id, addr: normalize(ap)}
}

func TestPendingKeyOrder(t *testing.T) {
	// The ID dominates everything else.
	assert.True(t, key(t, 1, "200.0.0.1:9999").less(key(t, 2, "10.0.0.1:1")))
	assert.False(t, key(t, 2, "10.0.0.1:1").less(key(t, 1, "200.0.0.1:9999")))

	// Address length orders before port or bytes, so every IPv4 key
	// sorts below every IPv6 key with the same ID.
	assert.True(t, key(t, 5, "255.255.255.255:9999").less(key(t, 5, "[::1]:1")))

	// Port orders before the address bytes.
	assert.True(t, key(t, 5, "9.9.9.9:50").less(key(t, 5, "1.1.1.1:100")))

	// Address bytes break the final tie.
	assert.True(t, key(t, 5, "1.2.3.4:53").less(key(t, 5, "1.2.3.5:53")))
	assert.True(t, key(t, 5, "[2001:db8::1]:53").less(key(t, 5, "[2001:db8::2]:53")))

	// Equal keys are not less than each other in either direction.
	a, b := key(t, 7, "192.0.2.1:53"), key(t, 7, "192.0.2.1:53")
	assert.False(t, a.less(b))
	assert.False(t, b.less(a))
}

func TestPendingKeyNormalizesMappedAddrs(t *testing.T) {
	// A v4 destination given as a v4-in-v6 mapped address must collide
	// with the plain v4 form, or replies would never match their query.
	mapped := key(t, 9, "[::ffff:192.0.2.1]:53")
	plain := key(t, 9, "192.0.2.1:53")
	assert.False(t, mapped.less(plain))
	assert.False(t, plain.less(mapped))
}

func TestPendingIndexInsertCollision(t *testing.T) {
	x := newPendingIndex()
	k := key(t, 42, "192.0.2.1:53")
	p1 := &Pending{id: k.id, addr: k.addr}
	p2 := &Pending{id: k.id, addr: k.addr}

	require.True(t, x.insert(p1))
	assert.False(t, x.insert(p2), "second insert with the same key must fail")
	assert.Equal(t, 1, x.len())

	// A different ID to the same destination is a distinct key.
	p3 := &Pending{id: k.id + 1, addr: k.addr}
	assert.True(t, x.insert(p3))
	assert.Equal(t, 2, x.len())
}

func TestPendingIndexLookupRemove(t *testing.T) {
	x := newPendingIndex()
	k := key(t, 100, "[2001:db8::1]:53")
	p := &Pending{id: k.id, addr: k.addr}
	require.True(t, x.insert(p))

	got, ok := x.lookup(k)
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = x.lookup(key(t, 101, "[2001:db8::1]:53"))
	assert.False(t, ok, "lookup with a different ID must miss")
	_, ok = x.lookup(key(t, 100, "[2001:db8::1]:54"))
	assert.False(t, ok, "lookup with a different port must miss")

	x.remove(p)
	_, ok = x.lookup(k)
	assert.False(t, ok)
	assert.Equal(t, 0, x.len())
}

func TestPendingIndexDrain(t *testing.T) {
	x := newPendingIndex()
	for i := 0; i < 10; i++ {
		k := key(t, uint16(i), "192.0.2.1:53")
		require.True(t, x.insert(&Pending{id: k.id, addr: k.addr}))
	}

	visited := 0
	x.drain(func(p *Pending) { visited++ })
	assert.Equal(t, 10, visited)
	assert.Equal(t, 0, x.len())
}
