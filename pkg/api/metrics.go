package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "etymon",
		Name:      "http_requests_total",
		Help:      "Lookup requests by method and status code.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "etymon",
		Name:      "http_request_duration_seconds",
		Help:      "Lookup latency. Cache hits and full synthesis land in very different buckets.",
		Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method"})
)

func observeRequest(method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// handleMetrics serves the Prometheus registry. Auth happens in adminOnly.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
