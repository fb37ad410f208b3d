package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuload/internal/runner"
	"vuload/internal/stats"
	"vuload/internal/threshold"
)

type runCtx struct {
	token string
	ids   []int
}

func states(res *Result) []State {
	out := make([]State, len(res.States))
	for i, tr := range res.States {
		out[i] = tr.To
	}
	return out
}

func TestController_HappyPath(t *testing.T) {
	reg := stats.NewRegistry()
	th, err := threshold.ParseAll(map[string][]string{"errors": {"rate<0.5"}})
	require.NoError(t, err)

	var tornDown []*runCtx
	c := New(Hooks[*runCtx]{
		Setup: func(context.Context) (*runCtx, error) {
			return &runCtx{token: "abc", ids: []int{1, 2}}, nil
		},
		Teardown: func(_ context.Context, rc *runCtx) error {
			tornDown = append(tornDown, rc)
			return nil
		},
	}, reg, th, nil)

	var seen *runCtx
	res, err := c.Run(context.Background(), func(_ context.Context, rc *runCtx) runner.Summary {
		seen = rc
		reg.AddRate(stats.MetricErrors, false)
		return runner.Summary{Iterations: 7}
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", seen.token)
	require.Len(t, tornDown, 1)
	assert.Same(t, seen, tornDown[0])
	assert.Equal(t, []State{StateSettingUp, StateRunning, StateTearingDown, StateCompleted}, states(res))
	assert.Equal(t, StateCompleted, c.State())
	assert.True(t, res.Passed())
	assert.Equal(t, int64(7), res.Summary.Iterations)
	assert.NoError(t, res.SetupErr)
}

func TestController_SetupFailureStillRuns(t *testing.T) {
	setupErr := errors.New("login failed")
	teardowns := 0
	c := New(Hooks[*runCtx]{
		Setup: func(context.Context) (*runCtx, error) {
			return &runCtx{}, setupErr
		},
		Teardown: func(_ context.Context, rc *runCtx) error {
			teardowns++
			assert.Empty(t, rc.token)
			return nil
		},
	}, nil, nil, nil)

	ran := false
	res, err := c.Run(context.Background(), func(_ context.Context, rc *runCtx) runner.Summary {
		ran = true
		assert.Empty(t, rc.token)
		return runner.Summary{}
	})
	require.NoError(t, err)

	assert.True(t, ran)
	assert.Equal(t, 1, teardowns)
	assert.ErrorIs(t, res.SetupErr, setupErr)
	assert.Equal(t, []State{StateSettingUp, StateSetupFailed, StateRunning, StateTearingDown, StateCompleted}, states(res))
	assert.Equal(t, StateNotStarted, res.States[0].From)
}

func TestController_TeardownErrorDoesNotFailRun(t *testing.T) {
	c := New(Hooks[int]{
		Teardown: func(context.Context, int) error { return errors.New("cleanup failed") },
	}, nil, nil, nil)

	res, err := c.Run(context.Background(), func(context.Context, int) runner.Summary { return runner.Summary{} })
	require.NoError(t, err)
	assert.Error(t, res.TeardownErr)
	assert.True(t, res.Passed())
}

func TestController_ThresholdFailure(t *testing.T) {
	reg := stats.NewRegistry()
	th, err := threshold.ParseAll(map[string][]string{"errors": {"rate<0.05"}})
	require.NoError(t, err)

	c := New(Hooks[int]{}, reg, th, nil)
	res, err := c.Run(context.Background(), func(context.Context, int) runner.Summary {
		reg.AddRate(stats.MetricErrors, true)
		reg.AddRate(stats.MetricErrors, false)
		return runner.Summary{}
	})
	require.NoError(t, err)
	assert.False(t, res.Passed())
	require.Len(t, res.Evaluation.Failed(), 1)
	assert.InDelta(t, 0.5, res.Evaluation.Failed()[0].Observed, 1e-9)
}

func TestController_TeardownSeesSnapshotTakenBefore(t *testing.T) {
	reg := stats.NewRegistry()
	c := New(Hooks[int]{
		Teardown: func(context.Context, int) error {
			reg.AddCount(stats.MetricHTTPReqs, 100)
			return nil
		},
	}, reg, nil, nil)

	res, err := c.Run(context.Background(), func(context.Context, int) runner.Summary {
		reg.AddCount(stats.MetricHTTPReqs, 1)
		return runner.Summary{}
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Snapshot.Metrics[stats.MetricHTTPReqs].Sum)
}

func TestController_RunsOnce(t *testing.T) {
	var changes []State
	c := New(Hooks[int]{}, nil, nil, nil)
	c.OnState(func(s State) { changes = append(changes, s) })

	main := func(context.Context, int) runner.Summary { return runner.Summary{} }
	_, err := c.Run(context.Background(), main)
	require.NoError(t, err)
	_, err = c.Run(context.Background(), main)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Len(t, changes, 4)
}

func TestController_ConcurrentRunStartsOnce(t *testing.T) {
	var setups atomic.Int32
	c := New(Hooks[int]{
		Setup: func(context.Context) (int, error) {
			setups.Add(1)
			return 0, nil
		},
	}, nil, nil, nil)
	main := func(context.Context, int) runner.Summary { return runner.Summary{} }

	var (
		wg      sync.WaitGroup
		started atomic.Int32
		refused atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Run(context.Background(), main)
			if errors.Is(err, ErrAlreadyStarted) {
				refused.Add(1)
				return
			}
			started.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(7), refused.Load())
	assert.Equal(t, int32(1), setups.Load())
}

func TestController_TeardownRunsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var teardownCtxErr error
	c := New(Hooks[int]{
		Teardown: func(ctx context.Context, _ int) error {
			teardownCtxErr = ctx.Err()
			return nil
		},
	}, nil, nil, nil)

	_, err := c.Run(ctx, func(context.Context, int) runner.Summary {
		cancel()
		return runner.Summary{}
	})
	require.NoError(t, err)
	assert.NoError(t, teardownCtxErr)
	assert.Equal(t, "completed", c.State().String())
}
