package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for credential lifecycle operations.
type Metrics struct {
	CredentialsIssued  *prometheus.CounterVec
	CredentialsRevoked prometheus.Counter
	Registrations      *prometheus.CounterVec
	Scans              *prometheus.CounterVec
	RateLimited        prometheus.Counter
	IssuanceLatency    prometheus.Histogram
	MerkleLeaves       prometheus.Gauge

	// Anchor fan-out
	AnchorAttempts *prometheus.CounterVec
	AnchorLatency  *prometheus.HistogramVec
}

// New registers lifecycle collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "racepass_credentials_issued_total",
			Help: "Total number of credentials issued, labeled by age category",
		}, []string{"age_category"}),
		CredentialsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "racepass_registrations_total",
			Help: "Event registrations, labeled by outcome code",
		}, []string{"outcome"}),
		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "racepass_ticket_scans_total",
			Help: "Ticket scans, labeled by outcome code",
		}, []string{"outcome"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "racepass_issuance_rate_limited_total",
			Help: "Issuance submissions rejected by the per-subject rate limit",
		}),
		IssuanceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "racepass_issuance_latency_seconds",
			Help:    "Latency of credential issuance including anchoring",
			Buckets: prometheus.DefBuckets,
		}),
		MerkleLeaves: factory.NewGauge(prometheus.GaugeOpts{
			Name: "racepass_attendance_leaves",
			Help: "Current number of leaves in the attendance Merkle log",
		}),
		AnchorAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "racepass_anchor_attempts_total",
			Help: "Anchor writer calls, labeled by chain and result",
		}, []string{"chain", "result"}),
		AnchorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "racepass_anchor_latency_seconds",
			Help:    "Latency of anchor writer calls",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"chain"}),
	}
}

func (m *Metrics) IncIssued(ageCategory string) {
	m.CredentialsIssued.WithLabelValues(ageCategory).Inc()
}

func (m *Metrics) IncRevoked() {
	m.CredentialsRevoked.Inc()
}

func (m *Metrics) IncRegistration(outcome string) {
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncScan(outcome string) {
	m.Scans.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRateLimited() {
	m.RateLimited.Inc()
}

func (m *Metrics) ObserveIssuance(d time.Duration) {
	m.IssuanceLatency.Observe(d.Seconds())
}

func (m *Metrics) SetMerkleLeaves(n int) {
	m.MerkleLeaves.Set(float64(n))
}

// ObserveAnchor records one writer outcome from the anchor dispatcher.
func (m *Metrics) ObserveAnchor(chain string, success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.AnchorAttempts.WithLabelValues(chain, result).Inc()
	m.AnchorLatency.WithLabelValues(chain).Observe(d.Seconds())
}
