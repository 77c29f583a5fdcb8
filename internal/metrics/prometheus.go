package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Prediction metrics
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"outcome"}, // outcome: success|invalid_input|unavailable|error
	)

	PredictionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irrigation_prediction_latency_seconds",
			Help:    "Prediction pipeline latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	PredictionProbability = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irrigation_prediction_probability",
			Help:    "Distribution of predicted irrigation probabilities",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		},
	)

	Recommendations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_recommendations_total",
			Help: "Recommendations served by advisory band",
		},
		[]string{"recommendation"},
	)

	// Training metrics
	Retrains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_retrains_total",
			Help: "Total number of retrain attempts",
		},
		[]string{"status"}, // status: succeeded|failed|rejected
	)

	RetrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irrigation_retrain_duration_seconds",
			Help:    "Retrain duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// Bundle metrics
	ActiveBundle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "irrigation_active_bundle_info",
			Help: "Set to 1 for the bundle currently serving predictions",
		},
		[]string{"bundle_id", "classifier", "encoding"},
	)

	BundleSwaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_bundle_swaps_total",
			Help: "Number of times the active bundle was replaced",
		},
		[]string{"source"}, // source: startup|retrain|sync
	)

	BundleValidationAccuracy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "irrigation_bundle_validation_accuracy",
			Help: "Held-out accuracy recorded when the active bundle was trained",
		},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "irrigation_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "irrigation_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "irrigation_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "irrigation_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irrigation_kafka_messages_total",
			Help: "Total Kafka messages published",
		},
		[]string{"topic", "status"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			// Prediction metrics
			Predictions,
			PredictionLatency,
			PredictionProbability,
			Recommendations,

			// Training metrics
			Retrains,
			RetrainDuration,

			// Bundle metrics
			ActiveBundle,
			BundleSwaps,
			BundleValidationAccuracy,

			// Worker metrics
			WorkerExecutions,
			WorkerDuration,
			WorkerLastRun,

			// HTTP metrics
			HTTPRequests,
			HTTPDuration,

			// Database metrics
			DBQueries,
			DBQueryDuration,

			// System metrics
			KafkaMessages,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPrediction records one prediction request
func RecordPrediction(outcome string, latency time.Duration, probability float64, recommendation string) {
	Predictions.WithLabelValues(outcome).Inc()
	PredictionLatency.Observe(latency.Seconds())

	if outcome == "success" {
		PredictionProbability.Observe(probability)
		Recommendations.WithLabelValues(recommendation).Inc()
	}
}

// RecordRetrain records a retrain attempt
func RecordRetrain(status string, duration time.Duration) {
	Retrains.WithLabelValues(status).Inc()
	if duration > 0 {
		RetrainDuration.Observe(duration.Seconds())
	}
}

// RecordBundleSwap marks a new bundle as active
func RecordBundleSwap(source, bundleID, classifier, encoding string, validationAccuracy float64) {
	ActiveBundle.Reset()
	ActiveBundle.WithLabelValues(bundleID, classifier, encoding).Set(1)
	BundleSwaps.WithLabelValues(source).Inc()
	BundleValidationAccuracy.Set(validationAccuracy)
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, statusText(code)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a publish attempt
func RecordKafkaMessage(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
