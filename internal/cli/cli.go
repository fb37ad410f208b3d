// Package cli is the headless console output: a header, a one-line progress
// indicator refreshed on every scheduler tick, and the final summary.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"vuload/internal/runner"
	"vuload/internal/stats"
)

type Header struct {
	Plan       string
	BaseURL    string
	Profile    runner.Profile
	Thresholds map[string][]string
	MaxRPS     float64
}

func PrintHeader(w io.Writer, h Header) {
	fmt.Fprintf(w, "\n🚀 STARTING VULOAD %s RUN\n", strings.ToUpper(h.Plan))
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", h.BaseURL)
	fmt.Fprintf(w, "Max VUs    : %d\n", h.Profile.MaxTarget())
	fmt.Fprintf(w, "Duration   : %s in %d stages\n", h.Profile.Total(), len(h.Profile))
	if h.MaxRPS > 0 {
		fmt.Fprintf(w, "Rate cap   : %.0f req/s\n", h.MaxRPS)
	}

	metrics := make([]string, 0, len(h.Thresholds))
	for m := range h.Thresholds {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		fmt.Fprintf(w, "Threshold  : %s %s\n", m, strings.Join(h.Thresholds[m], ", "))
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

// Progress redraws a single status line on w.
type Progress struct {
	w       io.Writer
	metrics *stats.Registry
	now     func() time.Time

	mu       sync.Mutex
	lastReqs float64
	lastAt   time.Time
	state    string
}

func NewProgress(w io.Writer, metrics *stats.Registry) *Progress {
	return &Progress{w: w, metrics: metrics, now: time.Now}
}

// SetState replaces the lifecycle label shown at the end of the line.
func (p *Progress) SetState(s string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Tick is meant to be passed to Scheduler.OnTick.
func (p *Progress) Tick(t runner.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.metrics.Snapshot()
	reqs := 0.0
	if v, ok := snap.Get(stats.MetricHTTPReqs); ok {
		reqs = v.Sum
	}
	now := p.now()
	rps := 0.0
	if !p.lastAt.IsZero() {
		if dt := now.Sub(p.lastAt).Seconds(); dt > 0 {
			rps = (reqs - p.lastReqs) / dt
		}
	}
	p.lastReqs, p.lastAt = reqs, now

	pct := 0.0
	if t.Total > 0 {
		pct = min(float64(t.Elapsed)/float64(t.Total), 1)
	}

	failed, _ := rateOf(snap, stats.MetricHTTPReqFailed)
	checks, _ := rateOf(snap, stats.MetricChecks)

	fmt.Fprintf(p.w, "\r%s %3.0f%% | %s/%s | VUs: %3d/%-3d | RPS: %6.1f | Reqs: %d | Failed: %5.2f%% | Checks: %6.2f%% %s",
		progressBar(pct, 20), pct*100,
		t.Elapsed.Round(time.Second), t.Total.Round(time.Second),
		t.Live, t.Target,
		rps,
		int64(reqs),
		failed*100,
		checks*100,
		p.state,
	)
}

// Done terminates the progress line.
func (p *Progress) Done() {
	fmt.Fprintln(p.w)
}

func rateOf(snap *stats.Snapshot, name string) (float64, bool) {
	v, ok := snap.Get(name)
	if !ok {
		return 0, false
	}
	return v.Rate()
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
