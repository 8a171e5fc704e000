package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registration workflow's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProvisionTotal          *prometheus.CounterVec
	ProvisionDuration       prometheus.Histogram
	CompensationTotal       *prometheus.CounterVec
	SessionResolutionsTotal *prometheus.CounterVec
	UniquenessChecksTotal   *prometheus.CounterVec
	StaleValidationsTotal   prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProvisionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_provision_total",
			Help: "Account provisioning attempts by outcome",
		}, []string{"outcome"}),
		ProvisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_provision_duration_seconds",
			Help:    "Duration of account provisioning (identity and profile writes)",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CompensationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_compensation_total",
			Help: "Compensating identity deletions by result",
		}, []string{"result"}),
		SessionResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_resolutions_total",
			Help: "Session resolutions by resulting state",
		}, []string{"state"}),
		UniquenessChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_uniqueness_checks_total",
			Help: "Identifier availability checks by result",
		}, []string{"result"}),
		StaleValidationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "storefront_stale_validations_total",
			Help: "Asynchronous validation results discarded because the field changed",
		}),
	}
}

// ObserveProvision records one provisioning attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProvision(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.ProvisionTotal.WithLabelValues(outcome).Inc()
	m.ProvisionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCompensation(result string) {
	if m == nil {
		return
	}
	m.CompensationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementSessionResolution(state string) {
	if m == nil {
		return
	}
	m.SessionResolutionsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementUniquenessCheck(result string) {
	if m == nil {
		return
	}
	m.UniquenessChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementStaleValidation() {
	if m == nil {
		return
	}
	m.StaleValidationsTotal.Inc()
}
