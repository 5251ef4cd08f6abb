// Package metrics exposes the request client's behaviour to Prometheus:
// per-verb call latency and outcome, plus whether the client is
// currently poisoned. The driver itself never scrapes these; a
// surrounding process can expose them on a debug endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups everything the ipc.Client instruments. Callers that
// don't want metrics can pass NewCollectors(prometheus.NewRegistry()) and
// simply never register that registry with a handler.
type Collectors struct {
	CallLatency *prometheus.HistogramVec
	CallErrors  *prometheus.CounterVec
	Poisoned    prometheus.Gauge
}

// NewCollectors creates and registers the driver's metrics on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		CallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridgefs",
			Subsystem: "ipc",
			Name:      "call_latency_seconds",
			Help:      "Round-trip latency of one request/response call to the backend, by verb.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
		CallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgefs",
			Subsystem: "ipc",
			Name:      "call_errors_total",
			Help:      "Calls to the backend that failed, by verb and kind.",
		}, []string{"verb", "kind"}),
		Poisoned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgefs",
			Subsystem: "ipc",
			Name:      "client_poisoned",
			Help:      "1 if the request client is poisoned and failing fast, 0 otherwise.",
		}),
	}
	reg.MustRegister(c.CallLatency, c.CallErrors, c.Poisoned)
	return c
}

// Noop returns a Collectors backed by a private registry, for callers
// (mainly tests) that need the type but don't care about the values.
func Noop() *Collectors {
	return NewCollectors(prometheus.NewRegistry())
}
