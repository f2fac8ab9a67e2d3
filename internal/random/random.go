package random

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Source draws uniformly distributed integers from an inclusive range.
type Source interface {
	Uint32InRange(low, high uint32) uint32
}

// NonCrypto is a non-cryptographic Source. It is safe for concurrent use.
type NonCrypto struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewNonCrypto creates a source seeded from the runtime's entropy.
func NewNonCrypto() *NonCrypto {
	return NewSeeded(rand.Uint64(), rand.Uint64())
}

// NewSeeded creates a reproducible source.
func NewSeeded(seed1, seed2 uint64) *NonCrypto {
	return &NonCrypto{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Uint32InRange returns a value in [low, high]. If high < low, low is returned.
func (n *NonCrypto) Uint32InRange(low, high uint32) uint32 {
	if high <= low {
		return low
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	span := uint64(high-low) + 1
	return low + uint32(n.rng.Uint64N(span))
}

// Sequence replays a fixed list of draws. Each value is returned verbatim,
// so the caller can assert exact arithmetic on the result.
type Sequence struct {
	mu     sync.Mutex
	values []uint32
	calls  int
}

// NewSequence creates a source that returns values in order.
func NewSequence(values ...uint32) *Sequence {
	return &Sequence{values: append([]uint32(nil), values...)}
}

// Uint32InRange returns the next value. It panics when the sequence is
// exhausted or the value falls outside [low, high].
func (s *Sequence) Uint32InRange(low, high uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls >= len(s.values) {
		panic(fmt.Sprintf("random: sequence exhausted after %d draws", s.calls))
	}
	v := s.values[s.calls]
	s.calls++
	if v < low || v > high {
		panic(fmt.Sprintf("random: sequence value %d outside [%d, %d]", v, low, high))
	}
	return v
}

// Calls returns the number of draws taken so far.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
