// Copyright 2025 Bruno Schaatsbergen. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package outnet

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
)

// Rand is the source of randomness for transaction IDs and egress socket
// selection. Implementations need not be safe for concurrent use; the
// dispatcher only draws from its event loop goroutine.
type Rand interface {
	Uint32() uint32
}

// chachaRand is the default Rand: a ChaCha8 generator seeded once from the
// operating system's entropy pool. Transaction IDs must be unpredictable
// to an off-path attacker, so a time-seeded generator is not an option.
type chachaRand struct {
	src *rand.ChaCha8
}

func newChaChaRand() (Rand, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seeding id generator: %w", err)
	}
	return &chachaRand{src: rand.NewChaCha8(seed)}, nil
}

func (c *chachaRand) Uint32() uint32 {
	// Take the high half of the 64-bit word.
	return uint32(c.src.Uint64() >> 32)
}

// queryID derives a 16-bit transaction ID from a random word. The low
// byte is shifted out before masking, keeping the higher-quality high
// bits of the draw.
func queryID(r Rand) uint16 {
	return uint16((r.Uint32() >> 8) & 0xffff)
}
