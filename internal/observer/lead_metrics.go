package observer

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_total",
			Help:      "Lead intake attempts by outcome (created or error category).",
		},
		[]string{"organization_id", "outcome"},
	)
	leadScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lead_score",
			Help:      "Distribution of scores assigned to created leads.",
			Buckets:   prometheus.LinearBuckets(40, 10, 7), // 40..100
		},
		[]string{"temperature", "source"},
	)
	statusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status change requests by edge and outcome (applied, noop, rejected, error).",
		},
		[]string{"from", "to", "outcome"},
	)

	sideEffectsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_tasks_submitted_total",
			Help:      "Side effect tasks handed to the worker pool.",
		},
		[]string{"kind"},
	)
	sideEffectsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_tasks_processed_total",
			Help:      "Side effect tasks processed by the worker pool, labeled by final status.",
		},
		[]string{"kind", "status"},
	)
	sideEffectDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "side_effect_duration_seconds",
			Help:      "Histogram of side effect task durations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	sideEffectPoolRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "side_effect_pool_running",
		Help:      "Number of running side effect workers.",
	})

	organizationCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "organization_cache_requests_total",
			Help:      "Organization cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
	notificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Lead notifications published to JetStream by status.",
		},
		[]string{"organization_id", "status"},
	)

	deadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "DLQ messages handled by the DLQ worker, by outcome (replayed, retry, archived, archive_failed, malformed).",
		},
		[]string{"organization_id", "outcome"},
	)
	dlqFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_fetch_errors_total",
		Help:      "Unexpected errors pulling from the DLQ consumer.",
	})
	dlqQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dlq_queue_length",
		Help:      "DLQ messages fetched but not yet handed to a worker.",
	})
	dlqProcessingDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dlq_processing_duration_seconds",
		Help:      "Histogram of DLQ message handling durations.",
		Buckets:   prometheus.DefBuckets,
	})

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route pattern and status code.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// IncIntake counts an intake attempt.
func IncIntake(organizationID, outcome string) {
	if metricsEnabled {
		intakeTotal.WithLabelValues(sanitizeTenant(organizationID), outcome).Inc()
	}
}

// ObserveLeadScore records the score of a created lead.
func ObserveLeadScore(temperature, source string, score int) {
	if metricsEnabled {
		leadScore.WithLabelValues(temperature, source).Observe(float64(score))
	}
}

// IncStatusTransition counts a status change request.
func IncStatusTransition(from, to, outcome string) {
	if metricsEnabled {
		statusTransitionsTotal.WithLabelValues(from, to, outcome).Inc()
	}
}

// IncSideEffectSubmitted counts a task handed to the side effect pool.
func IncSideEffectSubmitted(kind string) {
	if metricsEnabled {
		sideEffectsSubmittedTotal.WithLabelValues(kind).Inc()
	}
}

// IncSideEffectProcessed counts a finished side effect task.
func IncSideEffectProcessed(kind, status string) {
	if metricsEnabled {
		sideEffectsProcessedTotal.WithLabelValues(kind, status).Inc()
	}
}

// ObserveSideEffectDuration records how long a side effect task ran.
func ObserveSideEffectDuration(kind string, duration time.Duration) {
	if metricsEnabled {
		sideEffectDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// SetSideEffectPoolRunning sets the running worker gauge.
func SetSideEffectPoolRunning(running int) {
	if metricsEnabled {
		sideEffectPoolRunning.Set(float64(running))
	}
}

// IncOrganizationCache counts a cache lookup result.
func IncOrganizationCache(result string) {
	if metricsEnabled {
		organizationCacheTotal.WithLabelValues(result).Inc()
	}
}

// IncNotificationPublished counts a notification publish attempt.
func IncNotificationPublished(organizationID, status string) {
	if metricsEnabled {
		notificationsPublishedTotal.WithLabelValues(sanitizeTenant(organizationID), status).Inc()
	}
}

// IncDeadLetter counts a DLQ message outcome.
func IncDeadLetter(organizationID, outcome string) {
	if metricsEnabled {
		deadLettersTotal.WithLabelValues(sanitizeTenant(organizationID), outcome).Inc()
	}
}

// IncDlqFetchError counts a failed DLQ fetch.
func IncDlqFetchError() {
	if metricsEnabled {
		dlqFetchErrorsTotal.Inc()
	}
}

// SetDlqQueueLength sets the DLQ buffer gauge.
func SetDlqQueueLength(length int) {
	if metricsEnabled {
		dlqQueueLength.Set(float64(length))
	}
}

// ObserveDlqProcessingDuration records how long one DLQ message took.
func ObserveDlqProcessingDuration(duration time.Duration) {
	if metricsEnabled {
		dlqProcessingDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
