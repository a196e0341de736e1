package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricPassesTotal       = "analytics_passes_total"
	MetricPassDuration      = "analytics_pass_duration_seconds"
	MetricEventsAggregated  = "analytics_events_aggregated_total"
	MetricSnapshotCacheHits = "analytics_snapshot_cache_total"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds the Prometheus collectors of the aggregation service.
type Metrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	events       prometheus.Counter
	cache        *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPassesTotal,
				Help: "Aggregation passes by outcome",
			},
			[]string{"status"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricPassDuration,
				Help:    "Time to load and aggregate one project window",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		events: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricEventsAggregated,
				Help: "Events folded into snapshots",
			},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSnapshotCacheHits,
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.passes,
		m.passDuration,
		m.events,
		m.cache,
	}
}

func (m *Metrics) observePass(status string, seconds float64, events int) {
	m.passes.WithLabelValues(status).Inc()
	m.passDuration.Observe(seconds)
	if status == StatusSuccess {
		m.events.Add(float64(events))
	}
}

func (m *Metrics) observeCache(result string) {
	m.cache.WithLabelValues(result).Inc()
}
