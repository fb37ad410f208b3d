package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromObserver mirrors registry samples into Prometheus collectors so a run can
// be scraped while it is in progress.
type PromObserver struct {
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
	rates    *prometheus.CounterVec
	trends   *prometheus.HistogramVec
}

// NewPromObserver creates the collectors and registers them with reg.
func NewPromObserver(reg prometheus.Registerer) (*PromObserver, error) {
	o := &PromObserver{
		counters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vuload_counter_total",
				Help: "Sum of counter metric samples",
			},
			[]string{"metric"},
		),
		gauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vuload_gauge",
				Help: "Last value of gauge metrics",
			},
			[]string{"metric"},
		),
		rates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vuload_rate_samples_total",
				Help: "Rate metric samples by outcome",
			},
			[]string{"metric", "outcome"},
		),
		trends: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vuload_trend_seconds",
				Help:    "Trend metric samples in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"metric"},
		),
	}
	for _, c := range []prometheus.Collector{o.counters, o.gauges, o.rates, o.trends} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PromObserver) Observe(name string, kind Kind, value float64) {
	switch kind {
	case KindCounter:
		o.counters.WithLabelValues(name).Add(value)
	case KindGauge:
		o.gauges.WithLabelValues(name).Set(value)
	case KindRate:
		outcome := "miss"
		if value != 0 {
			outcome = "hit"
		}
		o.rates.WithLabelValues(name, outcome).Inc()
	case KindTrend:
		o.trends.WithLabelValues(name).Observe(value / 1000)
	}
}
