// Package metrics holds the exporter's own process-wide counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Upstream API actions
const (
	ActionDescribeMetricLast = "DescribeMetricLast"
	ActionListTagResources   = "ListTagResources"
)

// Requests counts upstream API requests by action.
//
// Metrics:
//   - cms_requests_total: successful page requests
//   - cms_failed_requests_total: failed request attempts
//
// Counters are safe for concurrent use; callers never synchronise.
type Requests struct {
	total  *prometheus.CounterVec
	failed *prometheus.CounterVec
}

// NewRequests creates the request counters and registers them with reg
func NewRequests(reg prometheus.Registerer) *Requests {
	r := &Requests{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_requests_total",
				Help: "CMS Request Total",
			},
			[]string{"action"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_failed_requests_total",
				Help: "CMS Failed Requests Total",
			},
			[]string{"action"},
		),
	}

	reg.MustRegister(r.total, r.failed)
	return r
}

// Succeeded records a successful request
func (r *Requests) Succeeded(action string) {
	r.total.WithLabelValues(action).Inc()
}

// Failed records a failed request attempt
func (r *Requests) Failed(action string) {
	r.failed.WithLabelValues(action).Inc()
}
