package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var ErrInvalidTable = errors.New("invalid scenario table")

// PauseFunc returns the think time after an iteration.
type PauseFunc func(r *rand.Rand) time.Duration

// Fixed pauses for exactly d.
func Fixed(d time.Duration) PauseFunc {
	return func(*rand.Rand) time.Duration { return d }
}

// Uniform pauses for a duration drawn uniformly from [min, max).
func Uniform(min, max time.Duration) PauseFunc {
	return func(r *rand.Rand) time.Duration {
		return min + time.Duration(r.Float64()*float64(max-min))
	}
}

// Entry is one row of a Table. Exactly one of Run and Sub is set.
type Entry struct {
	Name     string
	Weight   float64
	Requires Requirement
	Run      Func
	Sub      *Table
	// Pause overrides the plan's think time when this entry is on the
	// selected path.
	Pause PauseFunc
}

// Table picks one entry per draw. Each entry owns the interval between its
// cumulative weight and the previous one.
type Table struct {
	entries  []Entry
	bounds   []float64
	total    float64
	fallback Entry
}

// NewTable builds a table. The fallback is used whenever a selected entry's
// requirement is not met, so it must have none itself.
func NewTable(fallback Entry, entries ...Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidTable)
	}
	if fallback.Run == nil || fallback.Sub != nil {
		return nil, fmt.Errorf("%w: fallback %q must be a plain scenario", ErrInvalidTable, fallback.Name)
	}
	if fallback.Requires != NeedsNothing {
		return nil, fmt.Errorf("%w: fallback %q requires %s", ErrInvalidTable, fallback.Name, fallback.Requires)
	}

	t := &Table{fallback: fallback}
	for _, e := range entries {
		if !(e.Weight > 0) || math.IsInf(e.Weight, 0) {
			return nil, fmt.Errorf("%w: entry %q has weight %v", ErrInvalidTable, e.Name, e.Weight)
		}
		if (e.Run == nil) == (e.Sub == nil) {
			return nil, fmt.Errorf("%w: entry %q needs exactly one of Run or Sub", ErrInvalidTable, e.Name)
		}
		t.total += e.Weight
		t.entries = append(t.entries, e)
		t.bounds = append(t.bounds, t.total)
	}
	return t, nil
}

// Select maps draw in [0,1) onto the table. Scanning left to right, the first
// cumulative bound strictly above draw*total wins, so entry i owns the
// half-open interval [bound(i-1), bound(i)).
func (t *Table) Select(draw float64, rc *RunContext) Entry {
	if draw < 0 || math.IsNaN(draw) {
		draw = 0
	}
	x := draw * t.total
	idx := len(t.entries) - 1
	for i, b := range t.bounds {
		if b > x {
			idx = i
			break
		}
	}
	e := t.entries[idx]
	if !e.Requires.satisfiedBy(rc) {
		return t.fallback
	}
	return e
}

// Selection is the path taken by one dispatch.
type Selection struct {
	Path  []string
	Pause PauseFunc
}

func (s Selection) Leaf() string {
	if len(s.Path) == 0 {
		return ""
	}
	return s.Path[len(s.Path)-1]
}

// Dispatch draws from the iteration's RNG, runs the chosen scenario and
// returns the path it took. Nested tables draw again in their own weight space.
func (t *Table) Dispatch(ctx context.Context, it *Iteration) Selection {
	var sel Selection
	table := t
	for {
		e := table.Select(it.Rand.Float64(), it.Run)
		sel.Path = append(sel.Path, e.Name)
		if e.Pause != nil {
			sel.Pause = e.Pause
		}
		if e.Sub == nil {
			e.Run(ctx, it)
			return sel
		}
		table = e.Sub
	}
}

// Names lists the leaf scenario names reachable from the table, fallbacks
// included.
func (t *Table) Names() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(*Table)
	walk = func(tb *Table) {
		for _, e := range append([]Entry{tb.fallback}, tb.entries...) {
			if e.Sub != nil {
				walk(e.Sub)
				continue
			}
			if !seen[e.Name] {
				seen[e.Name] = true
				out = append(out, e.Name)
			}
		}
	}
	walk(t)
	return out
}

// Weights returns each top-level entry's share of the table.
func (t *Table) Weights() map[string]float64 {
	out := make(map[string]float64, len(t.entries))
	for _, e := range t.entries {
		out[e.Name] += e.Weight / t.total
	}
	return out
}
