package benchmark

import (
	"encoding/binary"
	mrand "math/rand"
)

// PayloadGenerator produces deterministic, reproducible message bodies of a
// fixed size, using a seeded PRNG so repeated runs generate identical
// payload sequences.
type PayloadGenerator struct {
	size int
	rng  *mrand.Rand
	n    int
}

func NewPayloadGenerator(size int, seed int64) *PayloadGenerator {
	if size < 8 {
		size = 8
	}
	return &PayloadGenerator{
		size: size,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Next returns the next payload: the 1-based call count n as a little-endian
// uint64 in the first 8 bytes, followed by deterministic filler bytes out to
// the configured size.
func (g *PayloadGenerator) Next() []byte {
	g.n++
	payload := make([]byte, g.size)
	binary.LittleEndian.PutUint64(payload, uint64(g.n))
	for i := 8; i < g.size; i++ {
		payload[i] = byte(g.rng.Intn(256))
	}
	return payload
}
