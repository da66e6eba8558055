package system

import (
	"math/rand/v2"
	"sync"
)

// Random is the capability boundary to a pseudo-random source.
type Random interface {
	Next() uint64
	Float() float64
}

// SystemRandom draws from the process-wide generator.
type SystemRandom struct{}

func (SystemRandom) Next() uint64   { return rand.Uint64() }
func (SystemRandom) Float() float64 { return rand.Float64() }

// SeededRandom is a deterministic generator for tests. Safe for
// concurrent use.
type SeededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSeededRandom(seed uint64) *SeededRandom {
	return &SeededRandom{rng: rand.New(rand.NewPCG(seed, seed))}
}

func (r *SeededRandom) Next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Uint64()
}

func (r *SeededRandom) Float() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}
