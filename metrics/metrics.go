// Package metrics holds the Prometheus collectors shared by the publisher,
// resolver, ledger and HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nftcard"

type Metrics struct {
	publishTotal    *prometheus.CounterVec
	publishDuration prometheus.Histogram
	uploadBytes     *prometheus.CounterVec
	resolveTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	ledgerCalls     *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		publishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "publications_total",
			Help:      "Publications by outcome (ok or error kind).",
		}, []string{"outcome"}),
		publishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "publication_duration_seconds",
			Help:      "Wall time of a publication, image and metadata uploads included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		uploadBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to the content-addressed store.",
		}, []string{"object"}),
		resolveTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Resolutions by status and degradation reason.",
		}, []string{"status", "reason"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_lookups_total",
			Help:      "Content cache lookups by result (hit or miss).",
		}, []string{"result"}),
		ledgerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Ledger calls by method and outcome.",
		}, []string{"method", "outcome"}),
		requestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ObservePublish(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(outcome).Inc()
	m.publishDuration.Observe(d.Seconds())
}

func (m *Metrics) AddUploadBytes(object string, n int) {
	if m == nil {
		return
	}
	m.uploadBytes.WithLabelValues(object).Add(float64(n))
}

func (m *Metrics) ObserveResolve(status, reason string) {
	if m == nil {
		return
	}
	m.resolveTotal.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLedgerCall(method string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ledgerCalls.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
