package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vuload/internal/httpx"
	"vuload/internal/runner"
	"vuload/internal/stats"
)

var ErrUnknownPlan = errors.New("unknown plan")

// Plan is a named load test: a profile, its thresholds and the scenario table
// every VU dispatches through.
type Plan struct {
	Name        string
	Description string
	Stages      runner.Profile
	Thresholds  map[string][]string
	Table       *Table
	Pause       PauseFunc
	// SeedProductTypes is how many product types setup creates.
	SeedProductTypes int
}

// PauseAfter returns the think time for a finished selection.
func (p *Plan) PauseAfter(sel Selection, it *Iteration) time.Duration {
	if sel.Pause != nil {
		return sel.Pause(it.Rand)
	}
	if p.Pause != nil {
		return p.Pause(it.Rand)
	}
	return 0
}

// Body adapts the plan to the scheduler: every iteration builds its headers
// from rc, dispatches once and then pauses. A stop request cuts the pause short.
func (p *Plan) Body(rc *RunContext, client *httpx.Client, metrics *stats.Registry, payloads *Payloads) runner.IterationFunc {
	return func(ctx context.Context, vu *runner.VU) {
		it := NewIteration(rc, client, metrics, vu.Rand, payloads)
		sel := p.Table.Dispatch(ctx, it)
		vu.Pause(ctx, p.PauseAfter(sel, it))
	}
}

type planBuilder func() (*Plan, error)

var builtinPlans = map[string]planBuilder{
	"smoke":  smokePlan,
	"load":   loadPlan,
	"spike":  spikePlan,
	"stress": stressPlan,
}

// PlanNames lists the built-in plans in lexical order.
func PlanNames() []string {
	names := make([]string, 0, len(builtinPlans))
	for n := range builtinPlans {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupPlan builds a fresh copy of the named built-in plan.
func LookupPlan(name string) (*Plan, error) {
	build, ok := builtinPlans[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownPlan, name, PlanNames())
	}
	return build()
}

func smokePlan() (*Plan, error) {
	sweep := Entry{Name: "smoke-sweep", Run: SmokeSweep}
	t, err := NewTable(sweep, Entry{Name: "smoke-sweep", Weight: 1, Run: SmokeSweep})
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:        "smoke",
		Description: "One VU touching every endpoint for a minute",
		Stages: runner.Profile{
			{Duration: 0, Target: 1},
			{Duration: time.Minute, Target: 1},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<1500"},
			"http_req_failed":   {"rate<0.1"},
		},
		Table: t,
		Pause: Fixed(time.Second),
	}, nil
}

func loadPlan() (*Plan, error) {
	reads := Entry{Name: "basic-reads", Run: BasicReads("load")}
	t, err := NewTable(reads,
		Entry{Name: "basic-reads", Weight: 0.6, Run: BasicReads("load")},
		Entry{Name: "basic-product-ops", Weight: 0.25, Requires: NeedsProductType, Run: BasicProductOps("load", PayloadLoadProduct)},
		Entry{Name: "basic-product-types", Weight: 0.15, Requires: NeedsToken, Run: BasicProductTypes("load")},
	)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:        "load",
		Description: "Ramp to 150 VUs, hold for ten minutes, ramp down",
		Stages: runner.Profile{
			{Duration: 2 * time.Minute, Target: 150},
			{Duration: 10 * time.Minute, Target: 150},
			{Duration: 2 * time.Minute, Target: 0},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<2000", "p(99)<5000"},
			"http_req_failed":   {"rate<0.1"},
			"errors":            {"rate<0.05"},
		},
		Table:            t,
		Pause:            Fixed(time.Second),
		SeedProductTypes: 5,
	}, nil
}

func spikePlan() (*Plan, error) {
	reads := Entry{Name: "basic-reads", Run: BasicReads("basic")}
	normal, err := NewTable(reads,
		Entry{Name: "basic-reads", Weight: 0.6, Run: BasicReads("basic")},
		Entry{Name: "normal-product-ops", Weight: 0.3, Requires: NeedsProductType, Run: BasicProductOps("normal", PayloadNormalProduct)},
		Entry{Name: "basic-product-types", Weight: 0.1, Requires: NeedsToken, Run: BasicProductTypes("basic")},
	)
	if err != nil {
		return nil, err
	}

	intensive := Entry{Name: "intensive-reads", Run: IntensiveReads}
	spike, err := NewTable(intensive,
		Entry{Name: "intensive-reads", Weight: 0.4, Run: IntensiveReads},
		Entry{Name: "rapid-product-ops", Weight: 0.3, Requires: NeedsProductType, Run: RapidProductOps},
		Entry{Name: "concurrent-ops", Weight: 0.15, Requires: NeedsToken, Run: ConcurrentOps},
		Entry{Name: "error-prone-ops", Weight: 0.15, Run: ErrorProneOps},
	)
	if err != nil {
		return nil, err
	}

	t, err := NewTable(reads,
		Entry{Name: "normal", Weight: 0.7, Sub: normal, Pause: Uniform(time.Second, 3*time.Second)},
		Entry{Name: "spike", Weight: 0.3, Sub: spike, Pause: Uniform(200*time.Millisecond, 1200*time.Millisecond)},
	)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:        "spike",
		Description: "Jump from 25 to 100 VUs for twenty seconds and back",
		Stages: runner.Profile{
			{Duration: 15 * time.Second, Target: 25},
			{Duration: 5 * time.Second, Target: 100},
			{Duration: 20 * time.Second, Target: 100},
			{Duration: 5 * time.Second, Target: 25},
			{Duration: 15 * time.Second, Target: 25},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(99)<10000"},
			"http_req_failed":   {"rate<0.2"},
			"errors":            {"rate<0.25"},
		},
		Table:            t,
		SeedProductTypes: 5,
	}, nil
}

func stressPlan() (*Plan, error) {
	reads := Entry{Name: "stress-reads", Run: StressReads}
	t, err := NewTable(reads,
		Entry{Name: "stress-reads", Weight: 0.6, Run: StressReads},
		Entry{Name: "stress-product-ops", Weight: 0.3, Requires: NeedsProductType, Run: StressProductOps},
		Entry{Name: "stress-health", Weight: 0.1, Requires: NeedsToken, Run: StressHealth},
	)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:        "stress",
		Description: "Step up to 300 VUs in three plateaus",
		Stages: runner.Profile{
			{Duration: 2 * time.Minute, Target: 50},
			{Duration: 5 * time.Minute, Target: 50},
			{Duration: 2 * time.Minute, Target: 200},
			{Duration: 5 * time.Minute, Target: 200},
			{Duration: 2 * time.Minute, Target: 300},
			{Duration: 5 * time.Minute, Target: 300},
			{Duration: 2 * time.Minute, Target: 0},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<5000", "p(99)<10000"},
			"http_req_failed":   {"rate<0.3"},
			"errors":            {"rate<0.4"},
		},
		Table:            t,
		Pause:            Fixed(300 * time.Millisecond),
		SeedProductTypes: 1,
	}, nil
}
