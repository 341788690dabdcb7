package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// tierMetrics counts tier calls and fallthroughs. A nil *tierMetrics is a no-op.
type tierMetrics struct {
	operations *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newTierMetrics(reg prometheus.Registerer) *tierMetrics {
	if reg == nil {
		return nil
	}

	m := &tierMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentmem",
				Name:      "tier_operations_total",
				Help:      "Memory tier calls by operation, tier and result",
			},
			[]string{"operation", "tier", "result"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentmem",
				Name:      "tier_fallbacks_total",
				Help:      "Calls that fell through past a tier",
			},
			[]string{"operation", "tier"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agentmem",
				Name:      "tier_duration_seconds",
				Help:      "Memory tier call latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation", "tier"},
		),
	}

	m.operations = registerOrExisting(reg, m.operations).(*prometheus.CounterVec)
	m.fallbacks = registerOrExisting(reg, m.fallbacks).(*prometheus.CounterVec)
	m.latency = registerOrExisting(reg, m.latency).(*prometheus.HistogramVec)
	return m
}

// registerOrExisting lets several clients share one registry.
func registerOrExisting(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

func (m *tierMetrics) observe(op, tier, result string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, tier, result).Inc()
	m.latency.WithLabelValues(op, tier).Observe(seconds)
}

func (m *tierMetrics) fallback(op, tier string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op, tier).Inc()
}
