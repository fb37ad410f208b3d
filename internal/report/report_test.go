package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuload/internal/lifecycle"
	"vuload/internal/runner"
	"vuload/internal/stats"
	"vuload/internal/threshold"
)

func sampleResult(t *testing.T) *lifecycle.Result {
	t.Helper()
	reg := stats.NewRegistry()
	for i := 0; i < 4; i++ {
		reg.AddCount(stats.MetricHTTPReqs, 1)
		reg.AddDuration(stats.MetricHTTPReqDuration, 10*time.Millisecond)
		reg.AddRate(stats.MetricHTTPReqFailed, i == 0)
		reg.AddRate(stats.MetricErrors, false)
	}
	reg.SetGauge(stats.MetricVUs, 3)
	reg.RecordCheck("status is 200", true)
	reg.RecordCheck("status is 200", false)
	reg.RecordCheck("product created", true)

	th, err := threshold.ParseAll(map[string][]string{
		stats.MetricHTTPReqFailed:   {"rate<0.1"},
		stats.MetricHTTPReqDuration: {"p(95)<500"},
		"custom_waiting":            {"avg<100"},
	})
	require.NoError(t, err)

	snap := reg.Snapshot()
	return &lifecycle.Result{
		Summary:    runner.Summary{Duration: 2 * time.Second, MaxLive: 3, Spawned: 3, Iterations: 4},
		Snapshot:   snap,
		Evaluation: threshold.Evaluate(snap, th),
		SetupErr:   errors.New("login failed"),
		Started:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuild(t *testing.T) {
	s := Build(sampleResult(t), Meta{RunID: "r1", Plan: "smoke", BaseURL: "http://localhost:6565"})

	assert.False(t, s.Passed)
	assert.Equal(t, "login failed", s.SetupError)
	assert.Equal(t, 3, s.MaxVUs)

	assert.Equal(t, 4.0, s.Value(stats.MetricHTTPReqs, "count"))
	assert.Equal(t, 2.0, s.Value(stats.MetricHTTPReqs, "rate"))
	assert.Equal(t, 0.25, s.Value(stats.MetricHTTPReqFailed, "rate"))
	assert.Equal(t, 0.0, s.Value(stats.MetricErrors, "rate"))
	assert.Equal(t, 3.0, s.Value(stats.MetricVUs, "value"))
	assert.InDelta(t, 10.0, s.Value(stats.MetricHTTPReqDuration, "p(95)"), 0.1)
	assert.InDelta(t, 10.0, s.Value(stats.MetricHTTPReqDuration, "med"), 0.1)

	assert.Equal(t, "trend", s.Metrics[stats.MetricHTTPReqDuration].Type)
	assert.False(t, s.Metrics[stats.MetricHTTPReqFailed].Thresholds["rate<0.1"])
	assert.True(t, s.Metrics[stats.MetricHTTPReqDuration].Thresholds["p(95)<500"])
	assert.True(t, s.Metrics["custom_waiting"].Thresholds["avg<100"])

	require.Len(t, s.Checks, 2)
	assert.Equal(t, "product created", s.Checks[0].Name)
	passes, fails := s.CheckTotals()
	assert.Equal(t, int64(2), passes)
	assert.Equal(t, int64(1), fails)
}

func TestBuild_NoSnapshot(t *testing.T) {
	s := Build(&lifecycle.Result{Evaluation: threshold.Evaluation{Passed: true}}, Meta{Plan: "load"})
	assert.True(t, s.Passed)
	assert.Empty(t, s.Metrics)
	assert.Zero(t, s.Value(stats.MetricHTTPReqs, "count"))
}

func TestSummary_Record(t *testing.T) {
	s := Build(sampleResult(t), Meta{RunID: "r1", Plan: "smoke", BaseURL: "http://x"})
	rec := s.Record()

	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "smoke", rec.Plan)
	assert.False(t, rec.Passed)
	assert.Equal(t, int64(4), rec.Summary.Requests)
	assert.Equal(t, 0.25, rec.Summary.FailedRate)
	assert.Equal(t, int64(1), rec.Summary.ChecksFailed)
	assert.Equal(t, []string{"http_req_failed: rate<0.1"}, rec.Failed)
}

func TestText(t *testing.T) {
	out := Text(Build(sampleResult(t), Meta{Plan: "smoke", BaseURL: "http://localhost:6565"}))

	assert.Contains(t, out, "smoke run complete")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "http://localhost:6565")
	assert.Contains(t, out, "status is 200")
	assert.Contains(t, out, "1/2 passed")
	assert.Contains(t, out, "http_req_failed: rate<0.1")
	assert.Contains(t, out, "observed 0.25")
	assert.Contains(t, out, "no data")
	assert.Contains(t, out, "setup: login failed")
}

func TestExport(t *testing.T) {
	s := Build(sampleResult(t), Meta{Plan: "smoke"})
	prefix := filepath.Join(t.TempDir(), "run")

	files, err := Export(s, prefix)
	require.NoError(t, err)
	require.Len(t, files, 2)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "smoke", decoded["plan"])
	assert.Contains(t, decoded["metrics"], stats.MetricHTTPReqDuration)

	f, err := os.Open(files[1])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"check", "passes", "fails", "total", "pass_rate"}, rows[0])
	assert.Equal(t, []string{"status is 200", "1", "1", "2", "0.5000"}, rows[2])
}
