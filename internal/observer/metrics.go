package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for intake admission metrics
	intakeLabels = []string{"outcome"}
	// Labels for dispatch processing metrics
	dispatchLabels = []string{"outcome"}

	// Intake admission counter, labeled by final outcome
	IntakeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missed_call_responder_intake_requests_total",
			Help: "Total number of missed call reports, labeled by admission outcome.",
		},
		intakeLabels,
	)

	// Dispatch processing counter, labeled by per-record outcome
	DispatchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missed_call_responder_dispatch_results_total",
			Help: "Total number of dispatch attempts on scheduled messages, labeled by outcome.",
		},
		dispatchLabels,
	)

	// Histogram of full dispatch cycle durations
	DispatchCycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "missed_call_responder_dispatch_cycle_duration_seconds",
			Help:    "Histogram of dispatch cycle durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	// Gauge of due messages picked up by the most recent cycle
	DispatchBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "missed_call_responder_dispatch_batch_size",
		Help: "Number of due messages fetched by the most recent dispatch cycle.",
	})
)

// Labels for SMS provider calls
var (
	smsLabels = []string{"status"}

	// Histogram of SMS provider request durations
	SmsSendDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "missed_call_responder_sms_send_duration_seconds",
			Help:    "Histogram of SMS provider request durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		smsLabels,
	)
)

// Labels for block list cache checks
var (
	blockCacheLabels = []string{"result"}

	// Block list cache check counter
	BlockCacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missed_call_responder_block_cache_checks_total",
			Help: "Total number of block list cache checks, labeled by result.",
		},
		blockCacheLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	// Histogram of database operation durations
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "missed_call_responder_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics toggles metric collection. Call during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncIntakeRequest increments the intake counter for an admission outcome.
func IncIntakeRequest(outcome string) {
	if !metricsEnabled {
		return
	}
	IntakeRequestsTotal.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

// IncDispatchResult increments the dispatch counter for a per-record outcome.
func IncDispatchResult(outcome string) {
	if !metricsEnabled {
		return
	}
	DispatchResultsTotal.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

// ObserveDispatchCycleDuration records the duration of one full dispatch cycle.
func ObserveDispatchCycleDuration(duration time.Duration) {
	if !metricsEnabled {
		return
	}
	DispatchCycleDurationSeconds.Observe(duration.Seconds())
}

// SetDispatchBatchSize records how many due messages the cycle fetched.
func SetDispatchBatchSize(size int) {
	if !metricsEnabled {
		return
	}
	DispatchBatchSize.Set(float64(size))
}

// ObserveSmsSendDuration records the duration of one SMS provider request.
func ObserveSmsSendDuration(duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	SmsSendDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// IncBlockCacheCheck increments the block list cache counter for a result.
func IncBlockCacheCheck(result string) {
	if !metricsEnabled {
		return
	}
	BlockCacheChecksTotal.WithLabelValues(sanitizeLabel(result)).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// sanitizeLabel ensures a label value is valid or returns a default value.
func sanitizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return strings.ToLower(value)
}
