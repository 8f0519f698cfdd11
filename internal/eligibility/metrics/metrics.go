package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	evaluations      *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	evaluateDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_eligibility_evaluations_total",
			Help: "Eligibility evaluations by outcome.",
		}, []string{"outcome"}),
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_eligibility_cache_hits_total",
			Help: "Display evaluations served from the snapshot cache.",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_eligibility_cache_misses_total",
			Help: "Display evaluations that had to recompute.",
		}),
		evaluateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civitas_eligibility_evaluate_duration_seconds",
			Help:    "Latency of fresh eligibility evaluations.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementEvaluations(eligible bool) {
	if m != nil {
		outcome := "ineligible"
		if eligible {
			outcome = "eligible"
		}
		m.evaluations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementCacheHits() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) IncrementCacheMisses() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) ObserveEvaluate(start time.Time) {
	if m != nil {
		m.evaluateDuration.Observe(time.Since(start).Seconds())
	}
}
