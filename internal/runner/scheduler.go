package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vuload/internal/stats"
)

// IterationFunc is one VU iteration. ctx is only cancelled when the lane is
// force-stopped, so an in-flight request is never interrupted by a graceful stop.
type IterationFunc func(ctx context.Context, vu *VU)

// Scheduler keeps the number of live VUs on the profile's target curve.
type Scheduler struct {
	profile Profile
	cfg     Config
	metrics *stats.Registry
	log     *zap.Logger

	mu      sync.Mutex
	vus     map[int]*VU
	nextID  int
	spawned int
	maxLive int
	wg      sync.WaitGroup

	iterations atomic.Int64

	onTick func(Tick)
}

func NewScheduler(profile Profile, cfg Config, metrics *stats.Registry, log *zap.Logger) (*Scheduler, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.GracefulStop < 0 {
		return nil, fmt.Errorf("%w: negative graceful stop %s", ErrInvalidProfile, cfg.GracefulStop)
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if metrics == nil {
		metrics = stats.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		profile: profile,
		cfg:     cfg,
		metrics: metrics,
		log:     log.With(zap.String("component", "scheduler")),
		vus:     make(map[int]*VU),
	}, nil
}

// OnTick registers a callback invoked after every reconciliation. It must be
// set before Run.
func (s *Scheduler) OnTick(fn func(Tick)) {
	s.onTick = fn
}

// Run drives the profile to completion and returns once every lane has exited
// or been abandoned after the graceful-stop window. Cancelling ctx ends the
// profile early but still drains gracefully.
func (s *Scheduler) Run(ctx context.Context, body IterationFunc) Summary {
	laneCtx, forceStop := context.WithCancel(context.WithoutCancel(ctx))
	defer forceStop()

	total := s.profile.Total()
	start := time.Now()
	s.log.Info("Profile started",
		zap.Int("stages", len(s.profile)),
		zap.Duration("duration", total),
		zap.Int("max_vus", s.profile.MaxTarget()),
	)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	end := time.NewTimer(total)
	defer end.Stop()

	s.reconcile(laneCtx, body, 0)

loop:
	for {
		select {
		case <-ctx.Done():
			s.log.Warn("Run cancelled, stopping early", zap.Duration("elapsed", time.Since(start)))
			break loop
		case <-end.C:
			break loop
		case now := <-ticker.C:
			s.reconcile(laneCtx, body, now.Sub(start))
		}
	}

	forced := s.drain(forceStop)

	s.mu.Lock()
	sum := Summary{
		Duration:     time.Since(start),
		Spawned:      s.spawned,
		MaxLive:      s.maxLive,
		ForceStopped: forced,
		Iterations:   s.iterations.Load(),
	}
	s.mu.Unlock()
	s.metrics.SetGauge(stats.MetricVUs, 0)

	s.log.Info("Profile finished",
		zap.Duration("duration", sum.Duration),
		zap.Int("spawned", sum.Spawned),
		zap.Int("max_live", sum.MaxLive),
		zap.Int("force_stopped", sum.ForceStopped),
	)
	return sum
}

func (s *Scheduler) reconcile(ctx context.Context, body IterationFunc, elapsed time.Duration) {
	target := s.profile.TargetAt(elapsed)

	s.mu.Lock()
	live := s.liveLocked()
	switch {
	case len(live) < target:
		for i := len(live); i < target; i++ {
			s.spawnLocked(ctx, body)
		}
	case len(live) > target:
		// newest first, so long-lived lanes keep running
		for _, vu := range live[target:] {
			vu.RequestStop()
		}
	}
	n := len(s.liveLocked())
	if n > s.maxLive {
		s.maxLive = n
	}
	s.mu.Unlock()

	s.metrics.SetGauge(stats.MetricVUs, float64(n))
	if s.onTick != nil {
		s.onTick(Tick{
			Elapsed: elapsed,
			Total:   s.profile.Total(),
			Stage:   s.profile.StageAt(elapsed),
			Target:  target,
			Live:    n,
		})
	}
}

// liveLocked returns VUs without a pending stop, oldest first.
func (s *Scheduler) liveLocked() []*VU {
	out := make([]*VU, 0, len(s.vus))
	for _, vu := range s.vus {
		if !vu.stopRequested() {
			out = append(out, vu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) spawnLocked(ctx context.Context, body IterationFunc) {
	s.nextID++
	s.spawned++
	vu := NewVU(s.nextID, s.cfg.Seed)
	s.vus[vu.ID] = vu
	s.wg.Add(1)
	go s.runVU(ctx, vu, body)
}

func (s *Scheduler) runVU(ctx context.Context, vu *VU, body IterationFunc) {
	defer s.wg.Done()
	defer s.remove(vu)

	for {
		if vu.stopRequested() || ctx.Err() != nil {
			return
		}
		if !vu.beginIteration() {
			return
		}
		start := time.Now()
		s.iterate(ctx, vu, body)
		s.iterations.Add(1)
		s.metrics.AddCount(stats.MetricIterations, 1)
		s.metrics.AddDuration(stats.MetricIterationDuration, time.Since(start))
		vu.endIteration()
	}
}

// iterate runs one iteration, turning a panic into a log entry so one broken
// scenario cannot take the whole run down.
func (s *Scheduler) iterate(ctx context.Context, vu *VU, body IterationFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Iteration panicked", zap.Int("vu", vu.ID), zap.Any("panic", r))
		}
	}()
	body(ctx, vu)
}

func (s *Scheduler) remove(vu *VU) {
	vu.markStopped()
	s.mu.Lock()
	delete(s.vus, vu.ID)
	s.mu.Unlock()
}

// Running returns the number of lanes still executing, stopping ones included.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vus)
}

// drain stops every VU, waits up to GracefulStop and then force-cancels the
// lanes still running. It returns how many lanes had to be forced.
func (s *Scheduler) drain(forceStop context.CancelFunc) int {
	s.mu.Lock()
	for _, vu := range s.vus {
		vu.RequestStop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.cfg.GracefulStop)
	defer grace.Stop()
	select {
	case <-done:
		return 0
	case <-grace.C:
	}

	forced := s.Running()
	s.log.Warn("Graceful stop expired, cancelling remaining VUs",
		zap.Duration("graceful_stop", s.cfg.GracefulStop),
		zap.Int("vus", forced),
	)
	forceStop()

	abandon := time.NewTimer(s.cfg.GracefulStop + time.Second)
	defer abandon.Stop()
	select {
	case <-done:
	case <-abandon.C:
		s.log.Error("VUs ignored cancellation and were abandoned", zap.Int("vus", s.Running()))
	}
	return forced
}
