// Package metrics provides observability for the credential ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks mutation counts and critical path durations for the
// credential ledger. All methods are nil-safe so tests and minimal wiring
// can run without a registry.
type Metrics struct {
	Minted           prometheus.Counter
	Burned           prometheus.Counter
	Transferred      prometheus.Counter
	Rejected         *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	ProbeDuration    prometheus.Histogram
}

// New registers all credential ledger metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Minted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_credentials_minted_total",
			Help: "Total number of credentials minted",
		}),
		Burned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_credentials_burned_total",
			Help: "Total number of credentials burned",
		}),
		Transferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civitas_credentials_transferred_total",
			Help: "Total number of credential transfers applied",
		}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civitas_credential_mutations_rejected_total",
			Help: "Credential mutations rejected, by error code",
		}, []string{"operation", "code"}),
		MutationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civitas_credential_mutation_duration_seconds",
			Help:    "Duration of credential ledger mutations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		ProbeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civitas_receiver_probe_duration_seconds",
			Help:    "Duration of receiver acceptance probes",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementMinted records a successful mint.
func (m *Metrics) IncrementMinted() {
	if m != nil {
		m.Minted.Inc()
	}
}

// IncrementBurned records a successful burn.
func (m *Metrics) IncrementBurned() {
	if m != nil {
		m.Burned.Inc()
	}
}

// IncrementTransferred records a successful transfer.
func (m *Metrics) IncrementTransferred() {
	if m != nil {
		m.Transferred.Inc()
	}
}

// IncrementRejected records a rejected mutation by error code.
func (m *Metrics) IncrementRejected(operation, code string) {
	if m != nil {
		m.Rejected.WithLabelValues(operation, code).Inc()
	}
}

// ObserveMutation records the duration of a ledger mutation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveMutation(operation string, start time.Time) {
	if m != nil {
		m.MutationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// ObserveProbe records the duration of a receiver acceptance probe.
func (m *Metrics) ObserveProbe(start time.Time) {
	if m != nil {
		m.ProbeDuration.Observe(time.Since(start).Seconds())
	}
}
