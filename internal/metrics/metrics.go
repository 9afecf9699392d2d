// Package metrics exposes Prometheus instrumentation for the maintenance service.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

// Recorder holds the service collectors on a private registry. A nil Recorder
// is valid and records nothing.
type Recorder struct {
	registry          *prometheus.Registry
	handler           http.Handler
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	costAccrued       prometheus.Counter
	notifications     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New registers the collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_operations_total",
		Help: "Lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_operation_duration_seconds",
		Help:    "Duration of lifecycle operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	costAccrued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "maintenance_cost_accrued_total",
		Help: "Spare part cost accrued onto machines at closure",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_notifications_total",
		Help: "Notification deliveries by sink and outcome",
	}, []string{"sink", "outcome"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	registry.MustRegister(operations, operationDuration, costAccrued, notifications, requestDuration)

	return &Recorder{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		operations:        operations,
		operationDuration: operationDuration,
		costAccrued:       costAccrued,
		notifications:     notifications,
		requestDuration:   requestDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// ObserveOperation records a lifecycle operation result.
func (r *Recorder) ObserveOperation(operation string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddCost records spare part cost accrued at closure.
func (r *Recorder) AddCost(amount float64) {
	if r == nil || amount <= 0 {
		return
	}
	r.costAccrued.Add(amount)
}

// ObserveNotification records one delivery attempt result per sink.
func (r *Recorder) ObserveNotification(sink, outcome string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(sink, outcome).Inc()
}

// ObserveHTTPRequest records request latency.
func (r *Recorder) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.requestDuration.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
}

// Middleware times every request passing through next.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		path := req.Pattern
		if path == "" {
			path = "unmatched"
		}
		r.ObserveHTTPRequest(req.Method, path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
