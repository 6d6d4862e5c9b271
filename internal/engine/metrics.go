package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	TradesExecuted   *prometheus.CounterVec
	SharesTraded     *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger operations by outcome.",
			},
			[]string{"op", "outcome"},
		),
		OperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_latency_seconds",
				Help:    "Ledger operation latency in seconds, including lock waits.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		TradesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_fills_total",
				Help: "Matched fills settled, by symbol.",
			},
			[]string{"symbol"},
		),
		SharesTraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_shares_traded_total",
				Help: "Shares moved by matched fills, by symbol.",
			},
			[]string{"symbol"},
		),
	}

	registry.MustRegister(m.Operations, m.OperationLatency, m.TradesExecuted, m.SharesTraded)
	return m
}

func (m *Metrics) ObserveOperation(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Metrics) ObserveFills(symbol string, fills int, shares int64) {
	if m == nil {
		return
	}
	m.TradesExecuted.WithLabelValues(symbol).Add(float64(fills))
	m.SharesTraded.WithLabelValues(symbol).Add(float64(shares))
}
