// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OperationsTotal counts Service verbs by outcome
	// (ok, not_found, conflict, invalid, forbidden, error).
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_operations_total",
			Help: "Metadata operations by verb and outcome.",
		}, []string{"op", "result"})

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metadata_operation_duration_seconds",
			Help:    "Latency of metadata operations, store round-trips included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_audit_events_total",
			Help: "Audit events handed to the sink, by phase.",
		}, []string{"phase"})

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "metadata_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full or the sink failed.",
		})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "route", "code"})
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		AuditEventsTotal,
		AuditDroppedTotal,
		HTTPRequestsTotal,
	)
}

// ObserveOperation records one finished verb.
func ObserveOperation(op, result string, started time.Time) {
	OperationsTotal.WithLabelValues(op, result).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
