package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPromObserver(reg)
	require.NoError(t, err)

	r := NewRegistry(o)
	r.AddCount(MetricHTTPReqs, 3)
	r.SetGauge(MetricVUs, 7)
	r.AddRate(MetricErrors, true)
	r.AddRate(MetricErrors, false)
	r.AddRate(MetricErrors, false)
	r.AddDuration(MetricHTTPReqDuration, 30*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(o.counters.WithLabelValues(MetricHTTPReqs)))
	assert.Equal(t, 7.0, testutil.ToFloat64(o.gauges.WithLabelValues(MetricVUs)))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.rates.WithLabelValues(MetricErrors, "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.rates.WithLabelValues(MetricErrors, "miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(o.trends, "vuload_trend_seconds"))

	_, err = NewPromObserver(reg)
	assert.Error(t, err)
}
