package nback

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Generator produces stimulus sequences of the given length over [1..alphabet]
// with at least minMatches positions i where seq[i] == seq[i-n].
type Generator interface {
	Generate(length, alphabet, minMatches, n int) ([]int, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(length, alphabet, minMatches, n int) ([]int, error)

// Generate calls f.
func (f GeneratorFunc) Generate(length, alphabet, minMatches, n int) ([]int, error) {
	return f(length, alphabet, minMatches, n)
}

// RandomGenerator places the required matches at random positions and fills
// the rest uniformly. Safe for concurrent use.
type RandomGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomGenerator seeds a generator from the wall clock.
func NewRandomGenerator() *RandomGenerator {
	return NewSeededGenerator(time.Now().UnixNano())
}

// NewSeededGenerator returns a generator with a fixed seed.
func NewSeededGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns a fresh sequence on every call.
func (g *RandomGenerator) Generate(length, alphabet, minMatches, n int) ([]int, error) {
	if err := checkSequenceParams(length, alphabet, minMatches, n); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	seq := make([]int, length)
	for i := range seq {
		seq[i] = g.rng.Intn(alphabet) + 1
	}
	if minMatches == 0 {
		return seq, nil
	}

	forced := make([]bool, length)
	for _, off := range g.rng.Perm(length - n)[:minMatches] {
		forced[off+n] = true
	}
	// Ascending order: seq[i-n] is final by the time seq[i] copies it.
	for i := n; i < length; i++ {
		if forced[i] {
			seq[i] = seq[i-n]
		}
	}
	return seq, nil
}

// CountMatches returns the number of positions i >= n with seq[i] == seq[i-n].
func CountMatches(seq []int, n int) int {
	if n < 1 {
		return 0
	}
	count := 0
	for i := n; i < len(seq); i++ {
		if seq[i] == seq[i-n] {
			count++
		}
	}
	return count
}

func checkSequenceParams(length, alphabet, minMatches, n int) error {
	switch {
	case length < 0:
		return fmt.Errorf("%w: negative length %d", ErrInvalidSequence, length)
	case alphabet < 1:
		return fmt.Errorf("%w: alphabet size %d", ErrInvalidSequence, alphabet)
	case n < 1:
		return fmt.Errorf("%w: lag %d", ErrInvalidSequence, n)
	case minMatches < 0:
		return fmt.Errorf("%w: negative match count %d", ErrInvalidSequence, minMatches)
	case minMatches > 0 && minMatches > length-n:
		return fmt.Errorf("%w: %d matches do not fit in %d events at lag %d",
			ErrInvalidSequence, minMatches, length, n)
	}
	return nil
}
