package runner

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidProfile = errors.New("invalid load profile")

// Validate rejects profiles that cannot be scheduled. It runs before any VU
// starts.
func (p Profile) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidProfile)
	}
	prevZero := false
	for i, s := range p {
		if s.Duration < 0 {
			return fmt.Errorf("%w: stage %d has negative duration %s", ErrInvalidProfile, i, s.Duration)
		}
		if s.Target < 0 {
			return fmt.Errorf("%w: stage %d has negative target %d", ErrInvalidProfile, i, s.Target)
		}
		zero := s.Duration == 0
		if zero && prevZero {
			return fmt.Errorf("%w: stages %d and %d both have zero duration", ErrInvalidProfile, i-1, i)
		}
		prevZero = zero
	}
	if p.Total() == 0 {
		return fmt.Errorf("%w: total duration is zero", ErrInvalidProfile)
	}
	return nil
}

// Total is the sum of all stage durations.
func (p Profile) Total() time.Duration {
	var total time.Duration
	for _, s := range p {
		total += s.Duration
	}
	return total
}

// MaxTarget is the highest target across all stages.
func (p Profile) MaxTarget() int {
	max := 0
	for _, s := range p {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// TargetAt returns the target VU count at elapsed, interpolating linearly
// inside the bracketing stage and rounding to the nearest integer. A
// zero-duration stage is a step to its target.
func (p Profile) TargetAt(elapsed time.Duration) int {
	target, _ := p.at(elapsed)
	return target
}

// StageAt returns the index of the stage running at elapsed. Past the end it
// returns the last index.
func (p Profile) StageAt(elapsed time.Duration) int {
	_, idx := p.at(elapsed)
	return idx
}

func (p Profile) at(elapsed time.Duration) (int, int) {
	if len(p) == 0 {
		return 0, 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	prev := 0
	var start time.Duration
	for i, s := range p {
		if s.Duration == 0 {
			prev = s.Target
			continue
		}
		if elapsed < start+s.Duration {
			frac := float64(elapsed-start) / float64(s.Duration)
			v := float64(prev) + float64(s.Target-prev)*frac
			return int(math.Round(v)), i
		}
		start += s.Duration
		prev = s.Target
	}
	return p[len(p)-1].Target, len(p) - 1
}
