// Package metrics exports Prometheus instrumentation for the alerting
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsProcessed counts sensor readings accepted by the engine.
	ReadingsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_readings_processed_total",
			Help: "Total number of sensor readings processed",
		},
	)

	// ProcessingErrors counts readings dropped or failed during processing.
	ProcessingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_processing_errors_total",
			Help: "Total number of processing errors",
		},
	)

	// ViolationsDetected counts rule violations by kind.
	ViolationsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_violations_detected_total",
			Help: "Total number of rule violations detected",
		},
		[]string{"kind"},
	)

	// AlertsTriggered counts created alerts by severity.
	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"severity"},
	)

	// AlertsResolved counts resolved alerts.
	AlertsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_resolved_total",
			Help: "Total number of alerts resolved",
		},
	)

	// AlertsEscalated counts escalations.
	AlertsEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_escalated_total",
			Help: "Total number of alert escalations",
		},
	)

	// DedupSkipped counts violations absorbed by the dedup window.
	DedupSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_dedup_skipped_total",
			Help: "Total number of violations skipped by deduplication",
		},
	)

	// ActiveAlerts tracks the current number of non-resolved alerts.
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_active_alerts",
			Help: "Current number of active alerts",
		},
	)

	// EventsPublished counts lifecycle events published downstream.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"event_type"},
	)
)
