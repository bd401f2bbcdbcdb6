package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	IntegrationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "socpulse",
			Subsystem: "integration",
			Name:      "latency_seconds",
			Help:      "Latency of outbound integration calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"integration"},
	)

	IntegrationCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socpulse",
			Subsystem: "integration",
			Name:      "calls_total",
			Help:      "Outbound integration calls by outcome",
		},
		[]string{"integration", "outcome"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "socpulse",
			Subsystem: "integration",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"integration"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(IntegrationLatency, IntegrationCalls, BreakerState)
	})
}
