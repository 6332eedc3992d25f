package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal  *prometheus.CounterVec
	adapterFailuresTotal *prometheus.CounterVec
	fusedResults         *prometheus.HistogramVec
	searchDuration       *prometheus.HistogramVec
	answerRunsTotal      *prometheus.CounterVec
	answerToolCallsTotal *prometheus.CounterVec
	streamEventsTotal    *prometheus.CounterVec
	cacheLookupsTotal    *prometheus.CounterVec
	cacheStoresTotal     *prometheus.CounterVec
	rateLimitedTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msearch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msearch",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search requests by classified intent.",
		},
		[]string{"service", "intent"},
	)
	adapterFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "search",
			Name:      "adapter_failures_total",
			Help:      "Total per-type retrieval adapter failures.",
		},
		[]string{"service", "content_type"},
	)
	fusedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msearch",
			Subsystem: "search",
			Name:      "fused_results",
			Help:      "Distribution of fused result counts per keyword search.",
			Buckets:   []float64{0, 1, 3, 5, 10, 15, 20, 30},
		},
		[]string{"service"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msearch",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	answerRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "answer",
			Name:      "runs_total",
			Help:      "Total completed answer runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	answerToolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "answer",
			Name:      "tool_calls_total",
			Help:      "Total research tool calls during answer runs.",
		},
		[]string{"service", "tool"},
	)
	streamEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "answer",
			Name:      "stream_events_total",
			Help:      "Total emitted stream events by type.",
		},
		[]string{"service", "type"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total answer cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	cacheStoresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "cache",
			Name:      "stores_total",
			Help:      "Total answers persisted to the cache.",
		},
		[]string{"service"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by rate limiting or backpressure.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		adapterFailuresTotal,
		fusedResults,
		searchDuration,
		answerRunsTotal,
		answerToolCallsTotal,
		streamEventsTotal,
		cacheLookupsTotal,
		cacheStoresTotal,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		searchRequestsTotal:  searchRequestsTotal,
		adapterFailuresTotal: adapterFailuresTotal,
		fusedResults:         fusedResults,
		searchDuration:       searchDuration,
		answerRunsTotal:      answerRunsTotal,
		answerToolCallsTotal: answerToolCallsTotal,
		streamEventsTotal:    streamEventsTotal,
		cacheLookupsTotal:    cacheLookupsTotal,
		cacheStoresTotal:     cacheStoresTotal,
		rateLimitedTotal:     rateLimitedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordSearchRequest(service, intent string) {
	if intent == "" {
		intent = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(service, intent).Inc()
}

func (m *HTTPServerMetrics) RecordAdapterFailure(service, contentType string) {
	if contentType == "" {
		contentType = "unknown"
	}
	m.adapterFailuresTotal.WithLabelValues(service, contentType).Inc()
}

func (m *HTTPServerMetrics) RecordSearchObservation(service string, resultCount int, duration time.Duration) {
	m.fusedResults.WithLabelValues(service).Observe(float64(resultCount))
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordAnswerRun(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.answerRunsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordToolCall(service, tool string) {
	if tool == "" {
		tool = "unknown"
	}
	m.answerToolCallsTotal.WithLabelValues(service, tool).Inc()
}

func (m *HTTPServerMetrics) RecordStreamEvent(service, eventType string) {
	m.streamEventsTotal.WithLabelValues(service, eventType).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordCacheStore(service string) {
	m.cacheStoresTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordRateLimited(service, reason string) {
	m.rateLimitedTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
