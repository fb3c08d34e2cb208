package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessiond"

type moduleMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestErrors    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	loopBusy         prometheus.Gauge
	connectedClients prometheus.Gauge

	storeLoadDuration prometheus.Histogram
	storeSaveDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			requestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "requests_total",
					Help:      "Total requests handled by operation and response status.",
				},
				[]string{"operation", "status"},
			),
			requestErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "request_errors_total",
					Help:      "Total error responses by error kind.",
				},
				[]string{"kind"},
			),
			requestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "request_duration_seconds",
					Help:      "Request handling duration in seconds by operation.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			loopBusy: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "loop_busy",
					Help:      "Server loop state (1 processing, 0 idle).",
				},
			),
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "connected_clients",
					Help:      "Current WebSocket client count.",
				},
			),
			storeLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "store_load_duration_seconds",
					Help:      "Session file load duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			storeSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "store_save_duration_seconds",
					Help:      "Session file save duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.requestsTotal,
			m.requestErrors,
			m.requestDuration,
			m.loopBusy,
			m.connectedClients,
			m.storeLoadDuration,
			m.storeSaveDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordRequest counts a handled request. errorKind is empty for successful responses.
func RecordRequest(operation string, duration time.Duration, errorKind string) {
	m := getMetrics()
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if errorKind != "" {
		status = "error"
		m.requestErrors.WithLabelValues(errorKind).Inc()
	}
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetLoopBusy(busy bool) {
	m := getMetrics()
	value := 0.0
	if busy {
		value = 1.0
	}
	m.loopBusy.Set(value)
}

func SetConnectedClients(count int) {
	m := getMetrics()
	m.connectedClients.Set(float64(count))
}

func RecordStoreLoad(duration time.Duration) {
	m := getMetrics()
	m.storeLoadDuration.Observe(duration.Seconds())
}

func RecordStoreSave(duration time.Duration) {
	m := getMetrics()
	m.storeSaveDuration.Observe(duration.Seconds())
}
