package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times RPC calls per client and method.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the RPC collectors on reg
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Number of JSON-RPC requests by client, method and outcome",
		}, []string{"client", "method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Latency of JSON-RPC requests by client and method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"client", "method"}),
	}

	if err := reg.Register(m.requests); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(client, method string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(client, method, outcome).Inc()
	m.duration.WithLabelValues(client, method).Observe(time.Since(start).Seconds())
}
