package rng

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource supplies uniform randomness to the games. Implementations
// must be safe for concurrent use.
type RandomSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// Source is a seeded math/rand source guarded by a mutex.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

func New(seed int64) *Source {
	return &Source{r: rand.New(rand.NewSource(seed))}
}

// NewFromTime seeds from the wall clock; use New for reproducible runs.
func NewFromTime() *Source {
	return New(time.Now().UnixNano())
}

func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *Source) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

// Uniform returns a value in [lo, hi).
func Uniform(src RandomSource, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Sample draws k distinct integers from 1..n in draw order, rejecting
// duplicates. It panics if k > n.
func Sample(src RandomSource, n, k int) []int {
	if k > n {
		panic("rng: sample larger than population")
	}
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for len(out) < k {
		v := src.Intn(n) + 1
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
