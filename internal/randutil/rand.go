// Package randutil builds the random sources used to shuffle decks.
package randutil

import (
	crand "crypto/rand"
	"encoding/binary"
	rand "math/rand/v2"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// Tests use it to replay the same deal.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// NewSecure returns a *rand.Rand with a fresh seed drawn from crypto/rand,
// so consecutive decks never repeat an ordering.
func NewSecure() *rand.Rand {
	var buf [16]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		panic(err)
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(buf[:8]), binary.LittleEndian.Uint64(buf[8:])))
}

// Source produces a random source for each new deck.
type Source func() *rand.Rand

// Seeded returns a Source that yields a deterministic sequence of generators
// derived from seed. Each call advances the seed so decks differ per hand.
func Seeded(seed int64) Source {
	next := seed
	return func() *rand.Rand {
		r := New(next)
		next++
		return r
	}
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
