package stats

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Snapshot is an immutable aggregate view of a Registry.
type Snapshot struct {
	Taken   time.Time             `json:"taken"`
	Metrics map[string]Value      `json:"metrics"`
	Checks  map[string]CheckTally `json:"checks"`
	Dropped int64                 `json:"dropped,omitempty"`
}

// Value is the aggregate of one metric.
//
// Count is the number of samples for every kind. Counters fill Sum, gauges fill
// Last and Max, rates fill Hits and trends fill Min, Max and Avg (milliseconds).
type Value struct {
	Kind  Kind    `json:"kind"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum,omitempty"`
	Last  float64 `json:"last,omitempty"`
	Hits  int64   `json:"hits,omitempty"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
	Avg   float64 `json:"avg,omitempty"`

	hist *hdrhistogram.Histogram
}

type CheckTally struct {
	Passes int64 `json:"passes"`
	Fails  int64 `json:"fails"`
}

// Get returns the named metric value.
func (s *Snapshot) Get(name string) (Value, bool) {
	v, ok := s.Metrics[name]
	return v, ok
}

// Empty reports whether no sample was recorded.
func (v Value) Empty() bool {
	return v.Count == 0
}

// Rate returns Hits/Count. The second result is false when there are no samples.
func (v Value) Rate() (float64, bool) {
	if v.Kind != KindRate || v.Count == 0 {
		return 0, false
	}
	return float64(v.Hits) / float64(v.Count), true
}

// Percentile returns the p-th percentile (0-100) of a trend in milliseconds.
func (v Value) Percentile(p float64) (float64, bool) {
	if v.Kind != KindTrend || v.Count == 0 || v.hist == nil {
		return 0, false
	}
	return float64(v.hist.ValueAtQuantile(p)) / 1000, true
}

// Total returns the number of checks evaluated.
func (c CheckTally) Total() int64 {
	return c.Passes + c.Fails
}
