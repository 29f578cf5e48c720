package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lead_engine"

var (
	metricsEnabled = true

	// Labels for stream consumer metrics
	eventProcessingLabels = []string{"event_type", "organization_id", "consumer_type"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "organization_id", "consumer_type", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events successfully processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of events that failed processing (NAK, DLQ or error).",
		},
		eventProcessingLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_duration_seconds",
			Help:      "Histogram of event processing durations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)
	EventRoutingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_routing_duration_seconds",
			Help:      "Histogram of time spent in router.Route.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		eventProcessingLabels,
	)
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_processing_actions_total",
			Help:      "Total count of ack/nak/dlq actions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "organization_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Histogram of database operation durations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Load Generator Metrics ---
var (
	loadgenLabels = []string{"subject", "organization_id"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_messages_attempted_total",
			Help: "Total number of messages the load generator attempted to publish.",
		},
		loadgenLabels,
	)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_messages_published_total",
			Help: "Total number of messages successfully published by the load generator.",
		},
		loadgenLabels,
	)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_publish_errors_total",
			Help: "Total number of errors encountered by the load generator during publishing.",
		},
		loadgenLabels,
	)
)

// InitMetrics toggles metric collection. Collectors are registered by promauto
// at package init; when disabled the helpers become no-ops.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// Enabled reports whether metric helpers record anything.
func Enabled() bool {
	return metricsEnabled
}

// IncEventsReceived increments the events received counter.
func IncEventsReceived(eventType, organizationID, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeTenant(organizationID), consumerType).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, organizationID, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeTenant(organizationID), consumerType).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, organizationID, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeTenant(organizationID), consumerType).Inc()
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(organizationID string) string {
	if organizationID == "" {
		return "unknown"
	}
	return organizationID
}

// ObserveEventProcessingDuration records the processing time for a specific event.
func ObserveEventProcessingDuration(eventType, organizationID, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(organizationID), consumerType).Observe(duration.Seconds())
}

// ObserveEventRoutingDuration records the routing time for a specific event.
func ObserveEventRoutingDuration(eventType, organizationID, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventRoutingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(organizationID), consumerType).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, organizationID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(organizationID), status).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for a specific processing outcome.
func IncEventProcessingAction(eventType, organizationID, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeTenant(organizationID), consumerType, action, SanitizeErrorType(errorType)).Inc()
}

// SanitizeErrorType maps an error string onto a small set of categories.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "invalid status transition"):
		return "transition"
	case strings.Contains(errStr, "storage failure"), strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"),
		strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"),
		strings.Contains(errStr, "missing required field"), strings.Contains(errStr, "email or phone"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// --- Load Generator Metric Helpers ---

// IncLoadgenMessagesAttempted increments the counter for attempted message publications.
func IncLoadgenMessagesAttempted(subject, organizationID string) {
	if metricsEnabled {
		loadgenMessagesAttemptedTotal.WithLabelValues(subject, sanitizeTenant(organizationID)).Inc()
	}
}

// IncLoadgenMessagesPublished increments the counter for successfully published messages.
func IncLoadgenMessagesPublished(subject, organizationID string) {
	if metricsEnabled {
		loadgenMessagesPublishedTotal.WithLabelValues(subject, sanitizeTenant(organizationID)).Inc()
	}
}

// IncLoadgenPublishErrors increments the counter for publishing errors.
func IncLoadgenPublishErrors(subject, organizationID string) {
	if metricsEnabled {
		loadgenPublishErrorsTotal.WithLabelValues(subject, sanitizeTenant(organizationID)).Inc()
	}
}
