package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RateIsHitsOverTotal(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		r.AddRate(MetricErrors, i < 3)
	}

	v, ok := r.Snapshot().Get(MetricErrors)
	require.True(t, ok)
	rate, ok := v.Rate()
	require.True(t, ok)
	assert.Equal(t, 0.3, rate)
	assert.Equal(t, int64(10), v.Count)
	assert.Equal(t, int64(3), v.Hits)
}

func TestRegistry_RateWithoutSamplesIsAbsent(t *testing.T) {
	var v Value
	v.Kind = KindRate

	rate, ok := v.Rate()
	assert.False(t, ok)
	assert.Zero(t, rate)

	_, found := NewRegistry().Snapshot().Get(MetricErrors)
	assert.False(t, found)
}

func TestRegistry_KindMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Record("custom", KindCounter, 1))

	err := r.Record("custom", KindRate, 1)
	require.ErrorIs(t, err, ErrKindMismatch)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Dropped)
	assert.Equal(t, KindCounter, snap.Metrics["custom"].Kind)
}

func TestRegistry_CounterRejectsNegative(t *testing.T) {
	r := NewRegistry()
	err := r.Record(MetricIterations, KindCounter, -1)
	require.ErrorIs(t, err, ErrNegativeCounter)
}

func TestRegistry_CounterAndGauge(t *testing.T) {
	r := NewRegistry()
	r.AddCount(MetricHTTPReqs, 1)
	r.AddCount(MetricHTTPReqs, 2)
	r.SetGauge(MetricVUs, 5)
	r.SetGauge(MetricVUs, 12)
	r.SetGauge(MetricVUs, 3)

	snap := r.Snapshot()
	assert.Equal(t, 3.0, snap.Metrics[MetricHTTPReqs].Sum)
	assert.Equal(t, int64(2), snap.Metrics[MetricHTTPReqs].Count)
	assert.Equal(t, 3.0, snap.Metrics[MetricVUs].Last)
	assert.Equal(t, 12.0, snap.Metrics[MetricVUs].Max)
}

func TestRegistry_TrendPercentiles(t *testing.T) {
	r := NewRegistry()
	for i := 1; i <= 1000; i++ {
		r.AddDuration(MetricHTTPReqDuration, time.Duration(i)*time.Millisecond)
	}

	v := r.Snapshot().Metrics[MetricHTTPReqDuration]
	assert.Equal(t, int64(1000), v.Count)
	assert.InDelta(t, 1.0, v.Min, 0.01)
	assert.InDelta(t, 1000.0, v.Max, 1.0)
	assert.InDelta(t, 500.5, v.Avg, 1.0)

	for _, tc := range []struct {
		p    float64
		want float64
	}{
		{50, 500},
		{90, 900},
		{95, 950},
		{99, 990},
	} {
		got, ok := v.Percentile(tc.p)
		require.True(t, ok)
		assert.InDelta(t, tc.want, got, tc.want*0.002, "p(%v)", tc.p)
	}
}

func TestRegistry_ChecksFeedTallyAndRate(t *testing.T) {
	r := NewRegistry()
	r.RecordCheck("status is 200", true)
	r.RecordCheck("status is 200", false)
	r.RecordCheck("body has id", true)

	snap := r.Snapshot()
	assert.Equal(t, CheckTally{Passes: 1, Fails: 1}, snap.Checks["status is 200"])
	assert.Equal(t, int64(1), snap.Checks["body has id"].Total())
	assert.Equal(t, []string{"body has id", "status is 200"}, snap.CheckNames())

	rate, ok := snap.Metrics[MetricChecks].Rate()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

func TestRegistry_SnapshotIsImmutable(t *testing.T) {
	r := NewRegistry()
	r.AddDuration(MetricHTTPReqDuration, 10*time.Millisecond)
	r.AddRate(MetricErrors, true)

	snap := r.Snapshot()
	p99, _ := snap.Metrics[MetricHTTPReqDuration].Percentile(99)

	for i := 0; i < 100; i++ {
		r.AddDuration(MetricHTTPReqDuration, 5*time.Second)
		r.AddRate(MetricErrors, false)
	}

	after, _ := snap.Metrics[MetricHTTPReqDuration].Percentile(99)
	assert.Equal(t, p99, after)
	assert.Equal(t, int64(1), snap.Metrics[MetricHTTPReqDuration].Count)
	assert.Equal(t, int64(1), snap.Metrics[MetricErrors].Count)
}

func TestRegistry_ConcurrentWriters(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				r.AddCount(MetricHTTPReqs, 1)
				r.AddRate(MetricHTTPReqFailed, i%5 == 0)
				r.AddDuration(MetricHTTPReqDuration, time.Millisecond)
				r.RecordCheck("ok", w%2 == 0)
			}
		}(w)
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, 8000.0, snap.Metrics[MetricHTTPReqs].Sum)
	assert.Equal(t, int64(8000), snap.Metrics[MetricHTTPReqFailed].Count)
	assert.Equal(t, int64(1600), snap.Metrics[MetricHTTPReqFailed].Hits)
	assert.Equal(t, int64(8000), snap.Metrics[MetricHTTPReqDuration].Count)
	assert.Equal(t, CheckTally{Passes: 4000, Fails: 4000}, snap.Checks["ok"])
}

type recordingObserver struct {
	mu      sync.Mutex
	samples []string
}

func (o *recordingObserver) Observe(name string, kind Kind, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, kind.String()+":"+name)
}

func TestRegistry_ObserversSeeAcceptedSamples(t *testing.T) {
	o := &recordingObserver{}
	r := NewRegistry(o)
	r.AddCount("a", 1)
	_ = r.Record("a", KindTrend, 1)
	r.AddRate("b", true)

	assert.Equal(t, []string{"counter:a", "rate:b"}, o.samples)
}
