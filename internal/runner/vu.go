package runner

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

type VUState int32

const (
	VUStateIdle VUState = iota
	VUStateRunning
	VUStateStopping
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VU is one virtual user lane. It keeps no state between iterations besides
// its random stream and counters.
type VU struct {
	ID   int
	Rand *rand.Rand

	state      atomic.Int32
	iterations atomic.Int64
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewVU(id int, seed uint64) *VU {
	return &VU{
		ID:   id,
		Rand: rand.New(rand.NewPCG(seed, uint64(id))),
		stop: make(chan struct{}),
	}
}

func (v *VU) State() VUState {
	return VUState(v.state.Load())
}

func (v *VU) Iterations() int64 {
	return v.iterations.Load()
}

// RequestStop asks the VU to exit after its current iteration.
func (v *VU) RequestStop() {
	v.stopOnce.Do(func() {
		v.state.Store(int32(VUStateStopping))
		close(v.stop)
	})
}

func (v *VU) stopRequested() bool {
	select {
	case <-v.stop:
		return true
	default:
		return false
	}
}

// Pause sleeps for d unless a stop is requested or ctx ends first. It reports
// whether the full pause elapsed.
func (v *VU) Pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-v.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (v *VU) beginIteration() bool {
	return v.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
}

func (v *VU) endIteration() {
	v.iterations.Add(1)
	v.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
}

func (v *VU) markStopped() {
	v.state.Store(int32(VUStateStopped))
}
