// Package report turns a finished run into the end-of-test summary: the
// console rendering, the JSON and CSV files and the history record.
package report

import (
	"fmt"
	"time"

	"vuload/internal/lifecycle"
	"vuload/internal/stats"
	"vuload/internal/storage"
	"vuload/internal/threshold"
)

// Meta identifies a run. It is not part of the lifecycle result.
type Meta struct {
	RunID   string
	Plan    string
	BaseURL string
}

// Metric is one metric in the summary. Values are keyed the way thresholds
// name aggregates: "rate", "count", "value", "avg", "p(95)" and so on.
type Metric struct {
	Type       string             `json:"type"`
	Values     map[string]float64 `json:"values"`
	Thresholds map[string]bool    `json:"thresholds,omitempty"`
}

type Check struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

func (c Check) Rate() float64 {
	if c.Passes+c.Fails == 0 {
		return 0
	}
	return float64(c.Passes) / float64(c.Passes+c.Fails)
}

type Summary struct {
	RunID         string                 `json:"run_id,omitempty"`
	Plan          string                 `json:"plan"`
	BaseURL       string                 `json:"base_url"`
	Started       time.Time              `json:"started"`
	Finished      time.Time              `json:"finished"`
	Duration      time.Duration          `json:"duration"`
	Passed        bool                   `json:"passed"`
	SetupError    string                 `json:"setup_error,omitempty"`
	TeardownError string                 `json:"teardown_error,omitempty"`
	MaxVUs        int                    `json:"max_vus"`
	Spawned       int                    `json:"spawned"`
	ForceStopped  int                    `json:"force_stopped,omitempty"`
	Iterations    int64                  `json:"iterations"`
	Metrics       map[string]Metric      `json:"metrics"`
	Checks        []Check                `json:"checks"`
	Thresholds    []threshold.Result     `json:"thresholds"`
	States        []lifecycle.Transition `json:"states"`
}

var trendQuantiles = []struct {
	key string
	p   float64
}{
	{"med", 50},
	{"p(90)", 90},
	{"p(95)", 95},
	{"p(99)", 99},
}

// Build summarises res. A result without a snapshot gives an empty metric set.
func Build(res *lifecycle.Result, meta Meta) *Summary {
	s := &Summary{
		RunID:        meta.RunID,
		Plan:         meta.Plan,
		BaseURL:      meta.BaseURL,
		Started:      res.Started,
		Finished:     res.Finished,
		Duration:     res.Summary.Duration,
		Passed:       res.Passed(),
		MaxVUs:       res.Summary.MaxLive,
		Spawned:      res.Summary.Spawned,
		ForceStopped: res.Summary.ForceStopped,
		Iterations:   res.Summary.Iterations,
		Metrics:      map[string]Metric{},
		Thresholds:   res.Evaluation.Results,
		States:       res.States,
	}
	if res.SetupErr != nil {
		s.SetupError = res.SetupErr.Error()
	}
	if res.TeardownErr != nil {
		s.TeardownError = res.TeardownErr.Error()
	}

	snap := res.Snapshot
	if snap == nil {
		return s
	}
	for _, name := range snap.Names() {
		s.Metrics[name] = metricOf(snap.Metrics[name], s.Duration)
	}
	for _, name := range snap.CheckNames() {
		t := snap.Checks[name]
		s.Checks = append(s.Checks, Check{Name: name, Passes: t.Passes, Fails: t.Fails})
	}
	for _, r := range res.Evaluation.Results {
		m, ok := s.Metrics[r.Metric]
		if !ok {
			m = Metric{Type: "none", Values: map[string]float64{}}
		}
		if m.Thresholds == nil {
			m.Thresholds = map[string]bool{}
		}
		m.Thresholds[r.Expr] = r.Passed
		s.Metrics[r.Metric] = m
	}
	return s
}

func metricOf(v stats.Value, elapsed time.Duration) Metric {
	m := Metric{Type: v.Kind.String(), Values: map[string]float64{}}
	switch v.Kind {
	case stats.KindCounter:
		m.Values["count"] = v.Sum
		if secs := elapsed.Seconds(); secs > 0 {
			m.Values["rate"] = v.Sum / secs
		}
	case stats.KindGauge:
		m.Values["value"] = v.Last
		m.Values["max"] = v.Max
	case stats.KindRate:
		rate, _ := v.Rate()
		m.Values["rate"] = rate
		m.Values["passes"] = float64(v.Hits)
		m.Values["fails"] = float64(v.Count - v.Hits)
	case stats.KindTrend:
		m.Values["avg"] = v.Avg
		m.Values["min"] = v.Min
		m.Values["max"] = v.Max
		for _, q := range trendQuantiles {
			if p, ok := v.Percentile(q.p); ok {
				m.Values[q.key] = p
			}
		}
	}
	m.Values["samples"] = float64(v.Count)
	return m
}

// Value returns a metric aggregate, or zero when absent.
func (s *Summary) Value(metric, key string) float64 {
	return s.Metrics[metric].Values[key]
}

// CheckTotals sums passes and fails over every check.
func (s *Summary) CheckTotals() (passes, fails int64) {
	for _, c := range s.Checks {
		passes += c.Passes
		fails += c.Fails
	}
	return passes, fails
}

// Record is the history entry for s.
func (s *Summary) Record() storage.Record {
	passes, fails := s.CheckTotals()
	rec := storage.Record{
		ID:        s.RunID,
		Timestamp: s.Started,
		Plan:      s.Plan,
		BaseURL:   s.BaseURL,
		Passed:    s.Passed,
		SetupErr:  s.SetupError,
		Summary: storage.Summary{
			Duration:     s.Duration,
			Requests:     int64(s.Value(stats.MetricHTTPReqs, "count")),
			Iterations:   s.Iterations,
			MaxVUs:       s.MaxVUs,
			FailedRate:   s.Value(stats.MetricHTTPReqFailed, "rate"),
			ErrorRate:    s.Value(stats.MetricErrors, "rate"),
			AvgLatencyMs: s.Value(stats.MetricHTTPReqDuration, "avg"),
			P95LatencyMs: s.Value(stats.MetricHTTPReqDuration, "p(95)"),
			P99LatencyMs: s.Value(stats.MetricHTTPReqDuration, "p(99)"),
			ChecksPassed: passes,
			ChecksFailed: fails,
		},
	}
	for _, r := range s.Thresholds {
		if !r.Passed {
			rec.Failed = append(rec.Failed, fmt.Sprintf("%s: %s", r.Metric, r.Expr))
		}
	}
	return rec
}
