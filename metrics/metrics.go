package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the emotion service
type Metrics struct {
	// Analysis metrics
	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	StageLatency *prometheus.HistogramVec
	Predictions  *prometheus.CounterVec
	Confidence   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all metrics on reg. A nil reg uses a fresh
// private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_runs_total",
			Help: "Total number of analysis runs by outcome",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotion_run_duration_seconds",
			Help:    "End-to-end analysis latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emotion_stage_duration_seconds",
			Help:    "Latency of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"stage"}),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_predictions_total",
			Help: "Predicted labels",
		}, []string{"label"}),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotion_prediction_confidence",
			Help:    "Confidence of the top label",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emotion_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveRun(outcome string, latency time.Duration) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(latency.Seconds())
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObservePrediction(label string, confidence float64) {
	m.Predictions.WithLabelValues(label).Inc()
	m.Confidence.Observe(confidence)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Wrap records request count and duration for endpoint.
func (m *Metrics) Wrap(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		m.HTTPRequests.WithLabelValues(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
