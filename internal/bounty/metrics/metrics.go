package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the bounty workflows.
type Metrics struct {
	// Bounties published, by difficulty
	Published *prometheus.CounterVec

	// Claim decisions: result is accepted or rejected, reason is the first rejection reason or "none"
	ClaimOutcome *prometheus.CounterVec

	// Bounties leaving active by a path other than a claim
	Closed *prometheus.CounterVec

	ClaimLatency prometheus.Histogram

	// Active bounties and the sats they hold
	Active       prometheus.Gauge
	ActiveReward prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geosats_bounties_published_total",
			Help: "Total bounties published by difficulty",
		}, []string{"difficulty"}),

		ClaimOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geosats_claim_outcomes_total",
			Help: "Total claim decisions by result and reason",
		}, []string{"result", "reason"}),

		Closed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geosats_bounties_closed_total",
			Help: "Total bounties cancelled or expired",
		}, []string{"status"}),

		ClaimLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "geosats_claim_duration_seconds",
			Help:    "Duration of claim handling including payout",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		Active: f.NewGauge(prometheus.GaugeOpts{
			Name: "geosats_bounties_active",
			Help: "Bounties currently active",
		}),
		ActiveReward: f.NewGauge(prometheus.GaugeOpts{
			Name: "geosats_bounties_active_reward_sats",
			Help: "Total reward of active bounties in sats",
		}),
	}
}

func (m *Metrics) IncrementPublished(difficulty string) {
	if m != nil {
		m.Published.WithLabelValues(difficulty).Inc()
	}
}

func (m *Metrics) IncrementClaimOutcome(result, reason string) {
	if m != nil {
		m.ClaimOutcome.WithLabelValues(result, reason).Inc()
	}
}

func (m *Metrics) IncrementClosed(status string) {
	if m != nil {
		m.Closed.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveClaimLatency(start time.Time) {
	if m != nil {
		m.ClaimLatency.Observe(time.Since(start).Seconds())
	}
}

// SetActive records the current active count and reward total.
func (m *Metrics) SetActive(count int, reward int64) {
	if m != nil {
		m.Active.Set(float64(count))
		m.ActiveReward.Set(float64(reward))
	}
}
