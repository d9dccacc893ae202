// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace      = "healthylife"
	unmatchedRoute = "unmatched"
)

// Recorder groups the service collectors behind a private registry.
type Recorder struct {
	registry           *prometheus.Registry
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	authRejections     *prometheus.CounterVec
	routineCompletions prometheus.Counter
	streakDuration     prometheus.Histogram
}

// NewRecorder registers the collectors. Process and Go runtime collectors are
// included when withRuntime is true.
func NewRecorder(withRuntime bool) *Recorder {
	recorder := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		authRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_rejections_total",
				Help:      "Requests rejected for a missing or invalid session",
			},
			[]string{"reason"},
		),
		routineCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routine_completions_total",
			Help:      "Routine completions appended to the completion log",
		}),
		streakDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "streak_computation_seconds",
			Help:      "Time spent deriving a streak snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
	recorder.registry.MustRegister(
		recorder.httpRequests,
		recorder.httpDuration,
		recorder.authRejections,
		recorder.routineCompletions,
		recorder.streakDuration,
	)
	if withRuntime {
		recorder.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return recorder
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware records request counts and latencies keyed by the matched route
// template so ids in paths do not explode label cardinality.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		r.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(started).Seconds())
	}
}

// AuthRejected counts a request refused by the session middleware.
func (r *Recorder) AuthRejected(reason string) {
	r.authRejections.WithLabelValues(reason).Inc()
}

// RoutineCompleted counts one appended completion.
func (r *Recorder) RoutineCompleted() {
	r.routineCompletions.Inc()
}

// ObserveStreak records how long a streak computation took.
func (r *Recorder) ObserveStreak(elapsed time.Duration) {
	r.streakDuration.Observe(elapsed.Seconds())
}
