// Package metrics exports protocol engine events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/agentrpc-go/internal/config"
)

// Namespace prefixes every metric name.
const Namespace = "agentrpc"

const stateReady = "ready"

// LatencyBuckets covers request latencies from 1ms to 60s.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}

// Collector records engine events. A single Collector may be shared by
// every session of a process.
type Collector struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	pendingRequests     prometheus.Gauge
	notificationsTotal  *prometheus.CounterVec
	protocolErrorsTotal prometheus.Counter
	stateTransitions    *prometheus.CounterVec
	sessionsReady       prometheus.Gauge
}

// Compile-time verification that Collector implements config.Metrics.
var _ config.Metrics = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Completed requests by direction, method and outcome",
			},
			[]string{"direction", "method", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration",
				Buckets:   LatencyBuckets,
			},
			[]string{"direction", "method"},
		),
		pendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "pending_requests",
				Help:      "Outbound requests awaiting a response",
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "notifications_total",
				Help:      "Notifications by direction and method",
			},
			[]string{"direction", "method"},
		),
		protocolErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "protocol_errors_total",
				Help:      "Ill-formed frames dropped",
			},
		),
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "session_state_transitions_total",
				Help:      "Session lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		sessionsReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "sessions_ready",
				Help:      "Sessions in the ready state",
			},
		),
	}

	for _, collector := range []prometheus.Collector{
		c.requestsTotal,
		c.requestDuration,
		c.pendingRequests,
		c.notificationsTotal,
		c.protocolErrorsTotal,
		c.stateTransitions,
		c.sessionsReady,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ObserveRequest implements config.Metrics.
func (c *Collector) ObserveRequest(direction, method, outcome string, elapsed time.Duration) {
	c.requestsTotal.WithLabelValues(direction, method, outcome).Inc()
	c.requestDuration.WithLabelValues(direction, method).Observe(elapsed.Seconds())
}

// PendingChanged implements config.Metrics.
func (c *Collector) PendingChanged(delta int) {
	c.pendingRequests.Add(float64(delta))
}

// ObserveNotification implements config.Metrics.
func (c *Collector) ObserveNotification(direction, method string) {
	c.notificationsTotal.WithLabelValues(direction, method).Inc()
}

// ObserveProtocolError implements config.Metrics.
func (c *Collector) ObserveProtocolError() {
	c.protocolErrorsTotal.Inc()
}

// SessionStateChanged implements config.Metrics.
func (c *Collector) SessionStateChanged(from, to string) {
	c.stateTransitions.WithLabelValues(from, to).Inc()

	if to == stateReady {
		c.sessionsReady.Inc()
	}

	if from == stateReady {
		c.sessionsReady.Dec()
	}
}
