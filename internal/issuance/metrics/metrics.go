package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	claims        *prometheus.CounterVec
	claimDuration prometheus.Histogram
	revocations   prometheus.Counter
	sweepFailures prometheus.Counter
	sweepDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		claims: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_claims_total",
			Help: "Credential claims by outcome.",
		}, []string{"outcome"}),
		claimDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civitas_claim_duration_seconds",
			Help:    "Latency of successful claims.",
			Buckets: prometheus.DefBuckets,
		}),
		revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_revocations_total",
			Help: "Credentials burned by the revocation sweep.",
		}),
		sweepFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_sweep_failures_total",
			Help: "Per-credential failures inside revocation sweeps.",
		}),
		sweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civitas_sweep_duration_seconds",
			Help:    "Duration of full revocation sweep passes.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60},
		}),
	}
}

func (m *Metrics) IncrementClaims(outcome string) {
	if m != nil {
		m.claims.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveClaim(start time.Time) {
	if m != nil {
		m.claimDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncrementRevocations() {
	if m != nil {
		m.revocations.Inc()
	}
}

func (m *Metrics) IncrementSweepFailures() {
	if m != nil {
		m.sweepFailures.Inc()
	}
}

func (m *Metrics) ObserveSweep(start time.Time) {
	if m != nil {
		m.sweepDuration.Observe(time.Since(start).Seconds())
	}
}
