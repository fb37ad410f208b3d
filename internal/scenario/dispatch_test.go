package scenario

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *Iteration) {}

var authed = &RunContext{Token: "t", ProductTypeIDs: []int64{1}}

func TestTable_SelectionFrequencyMatchesWeights(t *testing.T) {
	table, err := NewTable(Entry{Name: "fallback", Run: noop},
		Entry{Name: "a", Weight: 1, Run: noop},
		Entry{Name: "b", Weight: 2, Run: noop},
		Entry{Name: "c", Weight: 7, Run: noop},
	)
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(1, 2))
	const n = 200000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		counts[table.Select(r.Float64(), authed).Name]++
	}

	assert.Zero(t, counts["fallback"])
	assert.InDelta(t, 0.1, float64(counts["a"])/n, 0.01)
	assert.InDelta(t, 0.2, float64(counts["b"])/n, 0.01)
	assert.InDelta(t, 0.7, float64(counts["c"])/n, 0.01)
}

func TestTable_Boundaries(t *testing.T) {
	table, err := NewTable(Entry{Name: "fallback", Run: noop},
		Entry{Name: "first", Weight: 1, Run: noop},
		Entry{Name: "second", Weight: 1, Run: noop},
	)
	require.NoError(t, err)

	assert.Equal(t, "first", table.Select(0, authed).Name)
	assert.Equal(t, "first", table.Select(0.4999, authed).Name)
	assert.Equal(t, "second", table.Select(0.5, authed).Name)
	assert.Equal(t, "second", table.Select(0.9999, authed).Name)
	// out of range draws are clamped rather than rejected
	assert.Equal(t, "second", table.Select(1, authed).Name)
	assert.Equal(t, "first", table.Select(-1, authed).Name)
}

func TestTable_UnauthenticatedAlwaysFallsBack(t *testing.T) {
	table, err := NewTable(Entry{Name: "read-only", Run: noop},
		Entry{Name: "writes", Weight: 0.5, Requires: NeedsProductType, Run: noop},
		Entry{Name: "admin", Weight: 0.5, Requires: NeedsToken, Run: noop},
	)
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(3, 4))
	for _, rc := range []*RunContext{nil, {}, {ProductTypeIDs: []int64{1}}} {
		for i := 0; i < 1000; i++ {
			assert.Equal(t, "read-only", table.Select(r.Float64(), rc).Name)
		}
	}

	// a token without product types only loses the write entry
	tokenOnly := &RunContext{Token: "t"}
	assert.Equal(t, "read-only", table.Select(0.1, tokenOnly).Name)
	assert.Equal(t, "admin", table.Select(0.9, tokenOnly).Name)
}

func TestNewTable_Rejects(t *testing.T) {
	fb := Entry{Name: "fb", Run: noop}
	sub, err := NewTable(fb, Entry{Name: "x", Weight: 1, Run: noop})
	require.NoError(t, err)

	tests := []struct {
		name     string
		fallback Entry
		entries  []Entry
	}{
		{"no entries", fb, nil},
		{"zero weight", fb, []Entry{{Name: "a", Weight: 0, Run: noop}}},
		{"negative weight", fb, []Entry{{Name: "a", Weight: -1, Run: noop}}},
		{"no body", fb, []Entry{{Name: "a", Weight: 1}}},
		{"run and sub", fb, []Entry{{Name: "a", Weight: 1, Run: noop, Sub: sub}}},
		{"fallback needs auth", Entry{Name: "fb", Run: noop, Requires: NeedsToken}, []Entry{{Name: "a", Weight: 1, Run: noop}}},
		{"fallback without run", Entry{Name: "fb"}, []Entry{{Name: "a", Weight: 1, Run: noop}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.fallback, tt.entries...)
			assert.ErrorIs(t, err, ErrInvalidTable)
		})
	}
}

func TestTable_NestedDispatch(t *testing.T) {
	var ran []string
	run := func(name string) Func {
		return func(context.Context, *Iteration) { ran = append(ran, name) }
	}

	inner, err := NewTable(Entry{Name: "inner-fb", Run: run("inner-fb")},
		Entry{Name: "x", Weight: 1, Run: run("x")},
		Entry{Name: "y", Weight: 1, Run: run("y")},
	)
	require.NoError(t, err)
	outer, err := NewTable(Entry{Name: "outer-fb", Run: run("outer-fb")},
		Entry{Name: "nested", Weight: 1, Sub: inner, Pause: Fixed(42 * time.Millisecond)},
	)
	require.NoError(t, err)

	it := &Iteration{Run: authed, Rand: rand.New(rand.NewPCG(5, 6))}
	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		sel := outer.Dispatch(context.Background(), it)
		require.Len(t, sel.Path, 2)
		assert.Equal(t, "nested", sel.Path[0])
		assert.Equal(t, 42*time.Millisecond, sel.Pause(it.Rand))
		seen[sel.Leaf()]++
	}
	assert.Len(t, ran, 500)
	assert.Positive(t, seen["x"])
	assert.Positive(t, seen["y"])
	assert.ElementsMatch(t, []string{"outer-fb", "inner-fb", "x", "y"}, outer.Names())
}

func TestUniformPause(t *testing.T) {
	p := Uniform(200*time.Millisecond, 1200*time.Millisecond)
	r := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 1000; i++ {
		d := p(r)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.Less(t, d, 1200*time.Millisecond)
	}
}
