package diff

import "math"

// Tolerance zeroes contributions at or below the configured noise floor
// while still tracking the raw maximum absolute delta.
type Tolerance struct {
	tolerance   float64
	maxAbsDelta float64
}

// NewTolerance builds a tracker for the given noise floor.
func NewTolerance(tolerance float64) *Tolerance {
	return &Tolerance{tolerance: tolerance}
}

// Apply returns (delta, contribution) for one numeric pair. Contribution is
// |delta| when it exceeds the tolerance, zero otherwise.
func (t *Tolerance) Apply(old, new float64) (delta, contribution float64) {
	delta = new - old
	abs := math.Abs(delta)
	if abs > t.maxAbsDelta {
		t.maxAbsDelta = abs
	}
	if abs > t.tolerance {
		contribution = abs
	}
	return delta, contribution
}

// MaxAbsDelta returns the largest raw |delta| seen, pre-zeroing.
func (t *Tolerance) MaxAbsDelta() float64 {
	return t.maxAbsDelta
}
