package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors exported on /metrics.
type Metrics struct {
	calculations    *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	connectionState *prometheus.GaugeVec
	lastBlock       prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blended",
			Name:      "calculations_total",
			Help:      "Calculations by function, implementation and outcome.",
		}, []string{"function", "implementation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blended",
			Name:      "calculation_duration_seconds",
			Help:      "Time spent evaluating a function.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"function", "implementation"}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "blended",
			Name:      "connection_state",
			Help:      "1 for the current RPC connection state, 0 otherwise.",
		}, []string{"state"}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blended",
			Name:      "last_block_number",
			Help:      "Latest block number seen by the connection monitor.",
		}),
	}
	reg.MustRegister(m.calculations, m.latency, m.connectionState, m.lastBlock)
	m.SetConnection(StateLoading, 0)
	return m
}

// ObserveCalculation counts one calculation. mock marks results that came
// from the local fallback.
func (m *Metrics) ObserveCalculation(function, impl string, elapsed time.Duration, mock bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case mock:
		outcome = "mock"
	}
	m.calculations.WithLabelValues(function, impl, outcome).Inc()
	if err == nil {
		m.latency.WithLabelValues(function, impl).Observe(elapsed.Seconds())
	}
}

// SetConnection flips the state gauge and records the block number.
func (m *Metrics) SetConnection(state State, block uint64) {
	for _, s := range []State{StateLoading, StateConnected, StateFailed} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(string(s)).Set(v)
	}
	if block > 0 {
		m.lastBlock.Set(float64(block))
	}
}
