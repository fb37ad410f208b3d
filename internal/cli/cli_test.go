package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vuload/internal/runner"
	"vuload/internal/stats"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(0, 4))
	assert.Equal(t, "[██--]", progressBar(0.5, 4))
	assert.Equal(t, "[████]", progressBar(1.7, 4))
	assert.Equal(t, "[----]", progressBar(-1, 4))
}

func TestProgress_Tick(t *testing.T) {
	var buf bytes.Buffer
	reg := stats.NewRegistry()
	p := NewProgress(&buf, reg)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	p.Tick(runner.Tick{Elapsed: time.Second, Total: 4 * time.Second, Live: 1, Target: 2})

	for i := 0; i < 10; i++ {
		reg.AddCount(stats.MetricHTTPReqs, 1)
		reg.AddRate(stats.MetricHTTPReqFailed, i == 0)
		reg.RecordCheck("status is 200", true)
	}
	clock = clock.Add(2 * time.Second)
	p.SetState("running")
	buf.Reset()
	p.Tick(runner.Tick{Elapsed: 2 * time.Second, Total: 4 * time.Second, Live: 2, Target: 2})
	p.Done()

	out := buf.String()
	assert.Contains(t, out, " 50%")
	assert.Contains(t, out, "VUs:   2/2")
	assert.Contains(t, out, "RPS:    5.0")
	assert.Contains(t, out, "Reqs: 10")
	assert.Contains(t, out, "Failed: 10.00%")
	assert.Contains(t, out, "Checks: 100.00%")
	assert.Contains(t, out, "running")
}

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	PrintHeader(&buf, Header{
		Plan:       "smoke",
		BaseURL:    "http://localhost:6565",
		Profile:    runner.Profile{{Duration: time.Minute, Target: 5}},
		Thresholds: map[string][]string{"errors": {"rate<0.1"}, "checks": {"rate>0.9"}},
		MaxRPS:     50,
	})
	out := buf.String()
	assert.Contains(t, out, "VULOAD SMOKE RUN")
	assert.Contains(t, out, "Max VUs    : 5")
	assert.Contains(t, out, "Rate cap   : 50 req/s")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("checks")), bytes.Index(buf.Bytes(), []byte("errors rate")))
}
