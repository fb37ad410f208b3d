// Package lifecycle runs setup, the main phase and teardown as one state
// machine that owns the run context.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"vuload/internal/runner"
	"vuload/internal/stats"
	"vuload/internal/threshold"
)

var ErrAlreadyStarted = errors.New("run already started")

type State int

const (
	StateNotStarted State = iota
	StateSettingUp
	StateSetupFailed
	StateRunning
	StateTearingDown
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateSettingUp:
		return "setting-up"
	case StateSetupFailed:
		return "setup-failed"
	case StateRunning:
		return "running"
	case StateTearingDown:
		return "tearing-down"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Hooks are the setup and teardown routines. Setup returns a context even on
// failure; the run then continues with that degraded context.
type Hooks[C any] struct {
	Setup    func(ctx context.Context) (C, error)
	Teardown func(ctx context.Context, c C) error
}

// MainFunc is the main phase, typically a scheduler run.
type MainFunc[C any] func(ctx context.Context, c C) runner.Summary

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type Result struct {
	Summary     runner.Summary       `json:"summary"`
	Snapshot    *stats.Snapshot      `json:"-"`
	Evaluation  threshold.Evaluation `json:"evaluation"`
	SetupErr    error                `json:"-"`
	TeardownErr error                `json:"-"`
	States      []Transition         `json:"states"`
	Started     time.Time            `json:"started"`
	Finished    time.Time            `json:"finished"`
}

// Passed is the single boolean the process exit code is derived from.
func (r *Result) Passed() bool {
	return r.Evaluation.Passed
}

type Controller[C any] struct {
	hooks      Hooks[C]
	metrics    *stats.Registry
	thresholds []threshold.Threshold
	log        *zap.Logger

	mu      sync.Mutex
	state   State
	history []Transition
	onState func(State)
}

func New[C any](hooks Hooks[C], metrics *stats.Registry, thresholds []threshold.Threshold, log *zap.Logger) *Controller[C] {
	if metrics == nil {
		metrics = stats.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller[C]{
		hooks:      hooks,
		metrics:    metrics,
		thresholds: thresholds,
		log:        log.With(zap.String("component", "lifecycle")),
	}
}

// OnState registers a callback for every state change. Set it before Run.
func (c *Controller[C]) OnState(fn func(State)) {
	c.onState = fn
}

func (c *Controller[C]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the whole lifecycle once. Setup and teardown errors end up in
// the result; neither aborts the run.
func (c *Controller[C]) Run(ctx context.Context, main MainFunc[C]) (*Result, error) {
	c.mu.Lock()
	if c.state != StateNotStarted {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	from, fn := c.setStateLocked(StateSettingUp)
	c.mu.Unlock()
	c.notify(from, StateSettingUp, fn)

	res := &Result{Started: time.Now()}

	var rc C
	if c.hooks.Setup != nil {
		rc, res.SetupErr = c.hooks.Setup(ctx)
	}
	if res.SetupErr != nil {
		c.log.Warn("Setup failed, running in degraded mode", zap.Error(res.SetupErr))
		c.transition(StateSetupFailed)
	}

	c.transition(StateRunning)
	res.Summary = main(ctx, rc)
	res.Snapshot = c.metrics.Snapshot()
	res.Evaluation = threshold.Evaluate(res.Snapshot, c.thresholds)

	c.transition(StateTearingDown)
	if c.hooks.Teardown != nil {
		// teardown still runs after an interrupt
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		res.TeardownErr = c.hooks.Teardown(tctx, rc)
		cancel()
		if res.TeardownErr != nil {
			c.log.Warn("Teardown failed", zap.Error(res.TeardownErr))
		}
	}

	c.transition(StateCompleted)
	res.Finished = time.Now()
	c.mu.Lock()
	res.States = append([]Transition(nil), c.history...)
	c.mu.Unlock()

	c.log.Info("Run completed",
		zap.Bool("passed", res.Passed()),
		zap.Int("failed_thresholds", len(res.Evaluation.Failed())),
		zap.Duration("duration", res.Finished.Sub(res.Started)),
	)
	return res, nil
}

func (c *Controller[C]) transition(to State) {
	c.mu.Lock()
	from, fn := c.setStateLocked(to)
	c.mu.Unlock()
	c.notify(from, to, fn)
}

func (c *Controller[C]) setStateLocked(to State) (State, func(State)) {
	from := c.state
	c.state = to
	c.history = append(c.history, Transition{From: from, To: to, At: time.Now()})
	return from, c.onState
}

func (c *Controller[C]) notify(from, to State, fn func(State)) {
	c.log.Debug("State change", zap.Stringer("from", from), zap.Stringer("to", to))
	if fn != nil {
		fn(to)
	}
}
