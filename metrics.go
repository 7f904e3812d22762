package agentrpc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/agentrpc-go/internal/metrics"
)

// NewPrometheusMetrics registers the engine collectors with reg and returns
// a Metrics for WithMetrics. Sessions sharing the result share the series.
func NewPrometheusMetrics(reg prometheus.Registerer) (Metrics, error) {
	collector, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	return collector, nil
}
