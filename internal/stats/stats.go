// Package stats is the run-wide metrics registry. Every VU writes into the same
// Registry concurrently; the end of the run reads one immutable Snapshot.
package stats

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Built-in metric names.
const (
	MetricHTTPReqs          = "http_reqs"
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
	MetricVUs               = "vus"
	MetricChecks            = "checks"
	MetricErrors            = "errors"
)

var builtinKinds = map[string]Kind{
	MetricHTTPReqs:          KindCounter,
	MetricHTTPReqDuration:   KindTrend,
	MetricHTTPReqFailed:     KindRate,
	MetricIterations:        KindCounter,
	MetricIterationDuration: KindTrend,
	MetricVUs:               KindGauge,
	MetricChecks:            KindRate,
	MetricErrors:            KindRate,
}

// BuiltinKinds returns the kind of every metric the harness records itself.
func BuiltinKinds() map[string]Kind {
	return maps.Clone(builtinKinds)
}

var (
	// ErrKindMismatch is returned when a metric name is reused with another kind.
	ErrKindMismatch = errors.New("metric kind mismatch")
	// ErrNegativeCounter is returned for counter samples below zero.
	ErrNegativeCounter = errors.New("counter samples must be non-negative")
)

type Kind int

const (
	KindCounter Kind = iota
	KindGauge
	KindRate
	KindTrend
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindRate:
		return "rate"
	case KindTrend:
		return "trend"
	default:
		return "unknown"
	}
}

// Observer receives every accepted sample. It must be safe for concurrent use.
type Observer interface {
	Observe(name string, kind Kind, value float64)
}

type metric struct {
	kind Kind

	// counter / gauge
	mu    sync.Mutex
	sum   float64
	last  float64
	max   float64
	count int64

	// rate
	hits  atomic.Int64
	total atomic.Int64

	// trend, milliseconds stored as microseconds
	hist *SafeHistogram
}

func newMetric(kind Kind) *metric {
	m := &metric{kind: kind}
	if kind == KindTrend {
		m.hist = NewSafeHistogram()
	}
	return m
}

func (m *metric) add(v float64) {
	switch m.kind {
	case KindRate:
		m.total.Add(1)
		if v != 0 {
			m.hits.Add(1)
		}
	case KindTrend:
		m.hist.RecordValue(int64(math.Round(v * 1000)))
	default:
		m.mu.Lock()
		m.count++
		m.sum += v
		m.last = v
		if m.count == 1 || v > m.max {
			m.max = v
		}
		m.mu.Unlock()
	}
}

type tally struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// Registry accumulates samples by metric name.
type Registry struct {
	mu        sync.RWMutex
	metrics   map[string]*metric
	checks    map[string]*tally
	observers []Observer
	dropped   atomic.Int64
}

func NewRegistry(observers ...Observer) *Registry {
	return &Registry{
		metrics:   make(map[string]*metric),
		checks:    make(map[string]*tally),
		observers: observers,
	}
}

func (r *Registry) lookup(name string, kind Kind) (*metric, error) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if m, ok = r.metrics[name]; !ok {
			m = newMetric(kind)
			r.metrics[name] = m
		}
		r.mu.Unlock()
	}
	if m.kind != kind {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", ErrKindMismatch, name, m.kind, kind)
	}
	return m, nil
}

// Record adds one sample. Trend values are milliseconds; rate values count as
// a hit when non-zero.
func (r *Registry) Record(name string, kind Kind, value float64) error {
	if kind == KindCounter && value < 0 {
		r.dropped.Add(1)
		return fmt.Errorf("%w: %q got %v", ErrNegativeCounter, name, value)
	}
	m, err := r.lookup(name, kind)
	if err != nil {
		r.dropped.Add(1)
		return err
	}
	m.add(value)
	for _, o := range r.observers {
		o.Observe(name, kind, value)
	}
	return nil
}

// AddRate records one boolean outcome; hit increments the numerator.
func (r *Registry) AddRate(name string, hit bool) {
	v := 0.0
	if hit {
		v = 1
	}
	_ = r.Record(name, KindRate, v)
}

func (r *Registry) AddDuration(name string, d time.Duration) {
	_ = r.Record(name, KindTrend, float64(d)/float64(time.Millisecond))
}

func (r *Registry) AddCount(name string, n float64) {
	_ = r.Record(name, KindCounter, n)
}

func (r *Registry) SetGauge(name string, v float64) {
	_ = r.Record(name, KindGauge, v)
}

// RecordCheck tallies a named check and feeds the built-in checks rate.
func (r *Registry) RecordCheck(name string, ok bool) {
	r.mu.RLock()
	t, found := r.checks[name]
	r.mu.RUnlock()
	if !found {
		r.mu.Lock()
		if t, found = r.checks[name]; !found {
			t = &tally{}
			r.checks[name] = t
		}
		r.mu.Unlock()
	}
	if ok {
		t.passes.Add(1)
	} else {
		t.fails.Add(1)
	}
	r.AddRate(MetricChecks, ok)
}

// Snapshot copies every accumulator. Samples recorded while the copy is being
// taken may or may not be included, but each metric is internally consistent.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &Snapshot{
		Taken:   time.Now(),
		Metrics: make(map[string]Value, len(r.metrics)),
		Checks:  make(map[string]CheckTally, len(r.checks)),
		Dropped: r.dropped.Load(),
	}
	for name, m := range r.metrics {
		s.Metrics[name] = m.value()
	}
	for name, t := range r.checks {
		s.Checks[name] = CheckTally{Passes: t.passes.Load(), Fails: t.fails.Load()}
	}
	return s
}

func (m *metric) value() Value {
	v := Value{Kind: m.kind}
	switch m.kind {
	case KindRate:
		// total first: a concurrent add can only make hits <= total
		v.Count = m.total.Load()
		v.Hits = m.hits.Load()
		if v.Hits > v.Count {
			v.Hits = v.Count
		}
	case KindTrend:
		h := m.hist.Copy()
		v.Count = h.TotalCount()
		if v.Count > 0 {
			v.Min = float64(h.Min()) / 1000
			v.Max = float64(h.Max()) / 1000
			v.Avg = h.Mean() / 1000
		}
		v.hist = h
	default:
		m.mu.Lock()
		v.Count = m.count
		v.Sum = m.sum
		v.Last = m.last
		v.Max = m.max
		m.mu.Unlock()
	}
	return v
}

// Names returns the metric names of a snapshot in lexical order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Metrics))
	for n := range s.Metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckNames returns the check names of a snapshot in lexical order.
func (s *Snapshot) CheckNames() []string {
	names := make([]string, 0, len(s.Checks))
	for n := range s.Checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
