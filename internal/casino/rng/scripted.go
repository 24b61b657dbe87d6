package rng

import "sync"

// Scripted replays fixed values, then falls back to Fallback (or zero).
// It exists so game outcomes can be pinned in tests.
type Scripted struct {
	mu       sync.Mutex
	Floats   []float64
	Ints     []int
	Fallback RandomSource
}

func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Floats) > 0 {
		v := s.Floats[0]
		s.Floats = s.Floats[1:]
		return v
	}
	if s.Fallback != nil {
		return s.Fallback.Float64()
	}
	return 0
}

// Intn returns the next scripted int reduced modulo n.
func (s *Scripted) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Ints) > 0 {
		v := s.Ints[0]
		s.Ints = s.Ints[1:]
		return ((v % n) + n) % n
	}
	if s.Fallback != nil {
		return s.Fallback.Intn(n)
	}
	return 0
}
