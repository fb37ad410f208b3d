// Package threshold compiles pass/fail expressions such as "p(95)<2000" or
// "rate<0.1" and evaluates them against a finished metrics snapshot.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"vuload/internal/stats"
)

var ErrInvalidExpression = errors.New("invalid threshold expression")

type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
	OpNE Op = "!="
)

func (o Op) holds(observed, bound float64) bool {
	switch o {
	case OpLT:
		return observed < bound
	case OpLE:
		return observed <= bound
	case OpGT:
		return observed > bound
	case OpGE:
		return observed >= bound
	case OpEQ:
		return observed == bound
	case OpNE:
		return observed != bound
	default:
		return false
	}
}

// Threshold is one compiled predicate over one metric.
type Threshold struct {
	Metric    string
	Expr      string
	Aggregate string  // p(N), avg, min, max, med, count, rate or value
	Quantile  float64 // for p(N)
	Op        Op
	Bound     float64
}

var exprRe = regexp.MustCompile(`^\s*(p\(\s*(\d+(?:\.\d+)?)\s*\)|avg|min|max|med|count|rate|value)\s*(<=|>=|==|!=|<|>)\s*(-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?)\s*$`)

// Parse compiles expr for metric.
func Parse(metric, expr string) (Threshold, error) {
	if strings.TrimSpace(metric) == "" {
		return Threshold{}, fmt.Errorf("%w: empty metric name", ErrInvalidExpression)
	}
	m := exprRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("%w: %s: %q", ErrInvalidExpression, metric, expr)
	}

	t := Threshold{Metric: metric, Expr: strings.TrimSpace(expr), Aggregate: m[1], Op: Op(m[3])}
	if m[2] != "" {
		q, err := strconv.ParseFloat(m[2], 64)
		if err != nil || q < 0 || q > 100 {
			return Threshold{}, fmt.Errorf("%w: %s: percentile %q out of range", ErrInvalidExpression, metric, m[2])
		}
		t.Aggregate = "p(" + m[2] + ")"
		t.Quantile = q
	}
	bound, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("%w: %s: bound %q: %v", ErrInvalidExpression, metric, m[4], err)
	}
	t.Bound = bound
	return t, nil
}

// ParseAll compiles a metric -> expressions map. The result is ordered by
// metric name, then by expression order, so reports are stable.
func ParseAll(defs map[string][]string) ([]Threshold, error) {
	metrics := make([]string, 0, len(defs))
	for m := range defs {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	var out []Threshold
	var errs []error
	for _, metric := range metrics {
		for _, expr := range defs[metric] {
			t, err := Parse(metric, expr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, t)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Fits reports whether the threshold's aggregate is defined for kind.
func (t Threshold) Fits(kind stats.Kind) bool {
	switch t.Aggregate {
	case "count":
		return true
	case "rate":
		return kind == stats.KindRate
	case "value":
		return kind == stats.KindGauge
	default:
		return kind == stats.KindTrend
	}
}

// Validate checks thresholds against the metrics a run can produce, so a
// misspelled metric or an aggregate of the wrong kind is rejected before any
// load is generated. kinds maps metric name to kind.
func Validate(thresholds []Threshold, kinds map[string]stats.Kind) error {
	var errs []error
	for _, t := range thresholds {
		kind, ok := kinds[t.Metric]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s: unknown metric", ErrInvalidExpression, t.Metric))
			continue
		}
		if !t.Fits(kind) {
			errs = append(errs, fmt.Errorf("%w: %s: %s is not defined for %s metric", ErrInvalidExpression, t.Metric, t.Aggregate, kind))
		}
	}
	return errors.Join(errs...)
}

func (t Threshold) String() string {
	return t.Metric + ": " + t.Expr
}

// Result is the outcome of one predicate.
type Result struct {
	Metric   string  `json:"metric"`
	Expr     string  `json:"expr"`
	Observed float64 `json:"observed"`
	Passed   bool    `json:"passed"`
	// NoData is set when the metric has no samples. Such predicates pass.
	NoData bool   `json:"no_data,omitempty"`
	Note   string `json:"note,omitempty"`
}

type Evaluation struct {
	Results []Result `json:"results"`
	Passed  bool     `json:"passed"`
}

// Failed returns the predicates that did not hold.
func (e Evaluation) Failed() []Result {
	var out []Result
	for _, r := range e.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Evaluate checks every threshold against snap. It does not modify snap, so
// evaluating the same snapshot twice gives the same result.
func Evaluate(snap *stats.Snapshot, thresholds []Threshold) Evaluation {
	ev := Evaluation{Passed: true, Results: make([]Result, 0, len(thresholds))}
	for _, t := range thresholds {
		r := t.evaluate(snap)
		if !r.Passed {
			ev.Passed = false
		}
		ev.Results = append(ev.Results, r)
	}
	return ev
}

func (t Threshold) evaluate(snap *stats.Snapshot) Result {
	r := Result{Metric: t.Metric, Expr: t.Expr}

	var v stats.Value
	var found bool
	if snap != nil {
		v, found = snap.Get(t.Metric)
	}
	if !found || v.Empty() {
		r.NoData, r.Passed = true, true
		return r
	}

	observed, err := t.aggregate(v)
	if err != nil {
		r.Note = err.Error()
		return r
	}
	r.Observed = observed
	r.Passed = t.Op.holds(observed, t.Bound)
	return r
}

func (t Threshold) aggregate(v stats.Value) (float64, error) {
	if !t.Fits(v.Kind) {
		return 0, fmt.Errorf("%s is not defined for %s metric %q", t.Aggregate, v.Kind, t.Metric)
	}
	switch t.Aggregate {
	case "rate":
		rate, _ := v.Rate()
		return rate, nil
	case "count":
		if v.Kind == stats.KindCounter {
			return v.Sum, nil
		}
		return float64(v.Count), nil
	case "value":
		return v.Last, nil
	case "avg":
		return v.Avg, nil
	case "min":
		return v.Min, nil
	case "max":
		return v.Max, nil
	case "med":
		p, _ := v.Percentile(50)
		return p, nil
	default:
		p, _ := v.Percentile(t.Quantile)
		return p, nil
	}
}
