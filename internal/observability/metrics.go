package observability

import "github.com/prometheus/client_golang/prometheus"

// unmatchedRoute labels requests no registered pattern accepted, so scans of
// arbitrary paths cannot grow the series count.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askwarehouse_http_requests_total",
			Help: "Total number of API requests by mux route.",
		},
		[]string{"route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askwarehouse_http_request_duration_seconds",
			Help:    "API request latency by mux route. Ask calls wait on the analyst and the warehouse, so buckets reach two minutes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds)
}
