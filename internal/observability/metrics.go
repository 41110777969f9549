package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProposalsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transit_dispatch", Name: "proposals_total", Help: "Total driver proposals sent"})
	AssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transit_dispatch", Name: "assignments_total", Help: "Total assignments accepted by a driver"})
	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transit_dispatch", Name: "dispatch_failures_total", Help: "Dispatch loops that exhausted radius or time"})
	DispatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "transit_dispatch", Name: "dispatch_latency_seconds", Help: "Dispatch loop latency seconds"})
	LoopIterations   = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transit_dispatch",
		Name:      "dispatch_loop_iterations",
		Help:      "Radius iterations per dispatch call",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transit_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "transit_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
