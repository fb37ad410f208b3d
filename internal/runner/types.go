package runner

import (
	"time"
)

// Stage is one segment of a load profile: over Duration the target VU count
// moves linearly from the previous stage's Target to this one.
type Stage struct {
	Duration time.Duration `json:"duration" mapstructure:"duration"`
	Target   int           `json:"target" mapstructure:"target"`
}

// Profile is an ordered list of stages starting from an implicit target of 0.
type Profile []Stage

type Config struct {
	// Tick is how often the live VU count is reconciled with the target.
	Tick time.Duration
	// GracefulStop bounds the wait for in-flight iterations once the
	// profile ends; lanes still running afterwards are cancelled.
	GracefulStop time.Duration
	// Seed makes VU random streams reproducible. Zero uses the clock.
	Seed uint64
}

func DefaultConfig() Config {
	return Config{
		Tick:         time.Second,
		GracefulStop: 30 * time.Second,
	}
}

// Tick is reported after every reconciliation.
type Tick struct {
	Elapsed time.Duration
	Total   time.Duration
	Stage   int
	Target  int
	Live    int
}

type Summary struct {
	Duration     time.Duration
	Spawned      int
	MaxLive      int
	ForceStopped int
	Iterations   int64
}
