package fetchzip

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the request-shaped Prometheus collectors for the archive
// handler. The zipstream package itself stays metrics-free and reusable as
// a library; only this HTTP-facing shell observes outcomes.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	entriesTotal  prometheus.Counter
	buildDuration prometheus.Histogram
}

// NewMetrics registers the archive handler's collectors with reg and
// returns a Metrics to pass to NewHandler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_requests_total",
			Help: "Total number of archive requests, by outcome.",
		}, []string{"outcome"}),
		entriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_entries_total",
			Help: "Total number of entries requested across all archives.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archive_build_duration_seconds",
			Help:    "Time to build and stream an archive, from request to response completion.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.requestsTotal, m.entriesTotal, m.buildDuration)
	return m
}

func (m *Metrics) observeRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.buildDuration.Observe(d.Seconds())
}

func (m *Metrics) observeEntries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entriesTotal.Add(float64(n))
}
