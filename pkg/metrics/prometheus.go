// Package metrics provides Prometheus metrics for the Gauntlet
// tournament service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the tournament service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Round lifecycle
	roundsScored        prometheus.Counter
	roundsDiscarded     prometheus.Counter
	predictionsScored   prometheus.Counter
	predictionsMissing  prometheus.Counter
	duplicateSubmission prometheus.Counter
	labelsImputed       prometheus.Counter
	roundScoringLatency prometheus.Histogram

	// Tournament state
	activeModels     prometheus.Gauge
	currentPhase     prometheus.Gauge
	currentRound     prometheus.Gauge
	eliminations     *prometheus.CounterVec
	disqualification *prometheus.CounterVec

	// Ensemble
	ensembleCohort  *prometheus.GaugeVec
	ensembleSkipped prometheus.Counter

	// Forecast fan-out
	forecastLatency prometheus.Histogram
	forecastErrors  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gauntlet",
		subsystem:        "tournament",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.roundsScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rounds_scored_total",
		Help:      "Total number of rounds fully scored and persisted",
	})

	m.roundsDiscarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rounds_discarded_total",
		Help:      "Total number of rounds discarded before bookkeeping completed",
	})

	m.predictionsScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_scored_total",
		Help:      "Total number of (model, horizon) predictions scored",
	})

	m.predictionsMissing = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_missing_total",
		Help:      "Total number of predictions charged the worst-case loss (missing or out of range)",
	})

	m.duplicateSubmission = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_submissions_total",
		Help:      "Total number of replayed round submissions rejected by the guard",
	})

	m.labelsImputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "labels_imputed_total",
		Help:      "Total number of labels resolved benign because forward data was missing",
	})

	m.roundScoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "round_scoring_latency_milliseconds",
		Help:      "Histogram of full round scoring latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.activeModels = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_models",
		Help:      "Number of models still in contention",
	})

	m.currentPhase = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "current_phase",
		Help:      "Current elimination phase (0-3)",
	})

	m.currentRound = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "current_round",
		Help:      "Highest round number scored so far",
	})

	m.eliminations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eliminations_total",
			Help:      "Total number of model eliminations by phase",
		},
		[]string{"phase"},
	)

	m.disqualification = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "horizon_disqualifications_total",
			Help:      "Total number of per-horizon disqualifications by horizon",
		},
		[]string{"horizon"},
	)

	m.ensembleCohort = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ensemble_cohort_size",
			Help:      "Number of models blended per horizon in the last round",
		},
		[]string{"horizon"},
	)

	m.ensembleSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ensemble_skipped_total",
		Help:      "Total number of horizon/rounds where ensembling was skipped for lack of models",
	})

	m.forecastLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "forecast_collection_latency_milliseconds",
		Help:      "Histogram of per-round forecast fan-out latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.forecastErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "forecast_errors_total",
		Help:      "Total number of per-model forecast failures",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordRoundScored increments the scored-rounds counter.
func RecordRoundScored() {
	globalManager.roundsScored.Inc()
}

// RecordRoundDiscarded increments the discarded-rounds counter.
func RecordRoundDiscarded() {
	globalManager.roundsDiscarded.Inc()
}

// RecordPredictionScored increments the scored-predictions counter.
func RecordPredictionScored() {
	globalManager.predictionsScored.Inc()
}

// RecordPredictionMissing increments the missing-predictions counter.
func RecordPredictionMissing() {
	globalManager.predictionsMissing.Inc()
}

// RecordDuplicateSubmission increments the duplicate-submissions counter.
func RecordDuplicateSubmission() {
	globalManager.duplicateSubmission.Inc()
}

// RecordLabelImputed increments the imputed-labels counter.
func RecordLabelImputed() {
	globalManager.labelsImputed.Inc()
}

// RecordRoundScoringLatency records one round's scoring latency in milliseconds.
func RecordRoundScoringLatency(latencyMs float64) {
	globalManager.roundScoringLatency.Observe(latencyMs)
}

// UpdateActiveModels sets the in-contention model count.
func UpdateActiveModels(count int) {
	globalManager.activeModels.Set(float64(count))
}

// UpdateCurrentPhase sets the current phase gauge.
func UpdateCurrentPhase(phase int) {
	globalManager.currentPhase.Set(float64(phase))
}

// UpdateCurrentRound sets the current round gauge.
func UpdateCurrentRound(round int) {
	globalManager.currentRound.Set(float64(round))
}

// RecordElimination increments the elimination counter for a phase.
func RecordElimination(phase string) {
	globalManager.eliminations.WithLabelValues(phase).Inc()
}

// RecordDisqualification increments the disqualification counter for a horizon.
func RecordDisqualification(horizon string) {
	globalManager.disqualification.WithLabelValues(horizon).Inc()
}

// UpdateEnsembleCohort sets the blended cohort size for a horizon.
func UpdateEnsembleCohort(horizon string, size int) {
	globalManager.ensembleCohort.WithLabelValues(horizon).Set(float64(size))
}

// RecordEnsembleSkipped increments the skipped-ensemble counter.
func RecordEnsembleSkipped() {
	globalManager.ensembleSkipped.Inc()
}

// RecordForecastLatency records one round's fan-out latency in milliseconds.
func RecordForecastLatency(latencyMs float64) {
	globalManager.forecastLatency.Observe(latencyMs)
}

// RecordForecastError increments the per-model forecast failure counter.
func RecordForecastError() {
	globalManager.forecastErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
