package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks compliance publisher health. Persist failures here mean
// ledger mutations are being rejected, so they page.
type Metrics struct {
	eventsEmitted   prometheus.Counter
	persistFailures prometheus.Counter
	persistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		eventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_audit_compliance_events_emitted_total",
			Help: "Total number of compliance audit events persisted",
		}),
		persistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_audit_compliance_persist_failures_total",
			Help: "Total number of failed compliance audit writes (fail-closed)",
		}),
		persistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civitas_audit_compliance_persist_duration_seconds",
			Help:    "Latency of synchronous compliance audit writes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncEventsEmitted()                { m.eventsEmitted.Inc() }
func (m *Metrics) IncPersistFailures()              { m.persistFailures.Inc() }
func (m *Metrics) ObservePersistDuration(s float64) { m.persistDuration.Observe(s) }
