package catalog

import (
	"math/rand"
	"time"
)

// NewSource returns a seeded pseudo-random source. Seed 0 picks one from the
// clock; the chosen seed is returned so a run can be replayed.
func NewSource(seed int64) (Source, int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)), seed
}

// Script replays a fixed sequence of draws, wrapping around at the end.
type Script struct {
	values []float64
	next   int
}

func NewScript(values ...float64) *Script {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Script{values: values}
}

func (s *Script) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Draws reports how many values have been consumed.
func (s *Script) Draws() int {
	return s.next
}
