// Package metrics exposes Prometheus metrics for sign-in flows, the
// relay page and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backoffice"

// Relay results.
const (
	RelayPosted    = "posted"
	RelayDuplicate = "duplicate"
	RelayNoOpener  = "no_opener"
	RelayRejected  = "rejected"
)

// Recorder holds the metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	flowsStarted    prometheus.Counter
	flowsFinished   *prometheus.CounterVec
	flowDuration    *prometheus.HistogramVec
	relayCallbacks  *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		flowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_flows_started_total",
			Help:      "Sign-in flows started.",
		}),
		flowsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signin_flows_finished_total",
				Help:      "Sign-in flows finished, by outcome.",
			},
			[]string{"outcome"},
		),
		flowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "signin_flow_duration_seconds",
				Help:      "Time from opening the popup to finalizing the flow.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		relayCallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_callbacks_total",
				Help:      "Provider redirects served by the relay page, by result.",
			},
			[]string{"result"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"code", "method", "route"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of latencies for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"code", "method", "route"},
		),
	}

	r.registry.MustRegister(
		r.flowsStarted,
		r.flowsFinished,
		r.flowDuration,
		r.relayCallbacks,
		r.requestsTotal,
		r.requestDuration,
	)

	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FlowStarted counts a new flow.
func (r *Recorder) FlowStarted() {
	if r == nil {
		return
	}

	r.flowsStarted.Inc()
}

// FlowFinished records how a flow ended and how long it took.
func (r *Recorder) FlowFinished(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}

	r.flowsFinished.WithLabelValues(outcome).Inc()
	r.flowDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RelayCallback counts one relay page hit.
func (r *Recorder) RelayCallback(result string) {
	if r == nil {
		return
	}

	r.relayCallbacks.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Instrument wraps next, recording request counts and latencies under
// route.
func (r *Recorder) Instrument(route string, next http.Handler) http.Handler {
	if r == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, req)

		code := strconv.Itoa(sw.status)
		r.requestsTotal.WithLabelValues(code, req.Method, route).Inc()
		r.requestDuration.WithLabelValues(code, req.Method, route).Observe(time.Since(start).Seconds())
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

// Unwrap lets http.ResponseController and websocket upgrades reach the
// underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
