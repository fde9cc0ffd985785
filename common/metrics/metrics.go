// Package metrics exposes the pipeline-wide Prometheus collectors.
// Counters are labeled by service and event source so the gateway and the
// per-source collectors share one metric family.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAccepted counts events accepted at ingress, after validation
	// and durable publish.
	EventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admetry_events_accepted_total",
			Help: "Total number of accepted events",
		},
		[]string{"service", "source"},
	)

	// EventsProcessed counts events successfully processed and stored by
	// a collector.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admetry_events_processed_total",
			Help: "Total number of processed events",
		},
		[]string{"service", "source"},
	)

	// EventsFailed counts failures at ingress and at the collectors,
	// tagged with an error category (validation, publish, parse,
	// processing).
	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admetry_events_failed_total",
			Help: "Total number of failed events",
		},
		[]string{"service", "source", "error_category"},
	)

	// EventsQuarantined counts poison messages routed to the quarantine
	// stream after exhausting their delivery attempts.
	EventsQuarantined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admetry_events_quarantined_total",
			Help: "Total number of events moved to the quarantine stream",
		},
		[]string{"service", "source"},
	)

	// ReportDuration observes report generation latency in the reporter.
	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admetry_report_duration_seconds",
			Help:    "Duration of report generation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"report_type"},
	)
)

// Error categories used with EventsFailed.
const (
	CategoryValidation = "validation"
	CategoryPublish    = "publish"
	CategoryParse      = "parse"
	CategoryProcessing = "processing"
)
