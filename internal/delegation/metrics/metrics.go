package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DelegationRequests        *prometheus.CounterVec
	DelegationFailures        *prometheus.CounterVec
	ThresholdBreaches         prometheus.Counter
	IdentityResolutionSeconds prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		DelegationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authrelay_delegation_requests_total",
			Help: "Total delegated authorization decisions by outcome",
		}, []string{"outcome"}),
		DelegationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authrelay_delegation_failures_total",
			Help: "Total delegation failures recorded, by reason",
		}, []string{"reason"}),
		ThresholdBreaches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authrelay_delegation_threshold_breaches_total",
			Help: "Total failure-window threshold breaches alerted",
		}),
		IdentityResolutionSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "authrelay_identity_resolution_seconds",
			Help:    "Latency of external user store lookups",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveOutcome(outcome string) {
	m.DelegationRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFailure(reason string) {
	m.DelegationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveThresholdBreach() {
	m.ThresholdBreaches.Inc()
}
