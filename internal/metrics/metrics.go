package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusq_ticket_operations_total",
			Help: "Ticket lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusq_http_requests_total",
			Help: "HTTP requests by method, path pattern and status class",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusq_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusq_guard_rejections_total",
			Help: "Requests rejected locally by the guard layer",
		},
		[]string{"action"},
	)
)
