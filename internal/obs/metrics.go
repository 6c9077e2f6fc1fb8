// Package obs holds the process-wide Prometheus collectors.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded by AuthEvents.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "identity",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// AuthEvents counts authentication operations by name and outcome.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "auth_events_total",
		Help:      "Authentication operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	// TokensSwept counts expired stored tokens removed by the worker.
	TokensSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "tokens_swept_total",
		Help:      "Expired stored tokens deleted.",
	})
)

// RecordAuth increments AuthEvents for op depending on err.
func RecordAuth(op string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	AuthEvents.WithLabelValues(op, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument observes request duration labelled by the chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
