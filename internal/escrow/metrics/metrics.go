package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks escrow operations and payment provider health.
type Metrics struct {
	Operations       *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderRetries  prometheus.Counter
	CircuitOpen      prometheus.Gauge
	LockedSats       prometheus.Gauge
}

// New registers escrow metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geosats_escrow_operations_total",
			Help: "Escrow operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geosats_payment_provider_duration_seconds",
			Help:    "Duration of payment provider calls",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"call"}),
		ProviderRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "geosats_payment_provider_retries_total",
			Help: "Retried payment provider calls",
		}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "geosats_payment_provider_circuit_open",
			Help: "1 while the payment provider circuit breaker is open",
		}),
		LockedSats: f.NewGauge(prometheus.GaugeOpts{
			Name: "geosats_escrow_locked_sats",
			Help: "Sats currently held in escrow",
		}),
	}
}

// RecordOperation counts an escrow operation with outcome ok or error.
func (m *Metrics) RecordOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// ObserveProviderCall records a provider call duration. Call with time.Now()
// taken before the call.
func (m *Metrics) ObserveProviderCall(call string, start time.Time) {
	m.ProviderDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRetries() {
	m.ProviderRetries.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) AddLocked(amount int64) {
	m.LockedSats.Add(float64(amount))
}
