package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askwarehouse_ask_requests_total",
			Help: "Total number of ask runs by outcome.",
		},
		[]string{"outcome"},
	)
	askDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askwarehouse_ask_duration_seconds",
			Help:    "End-to-end ask run latency, from upstream request to assembled answer.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askwarehouse_stream_events_total",
			Help: "Total number of analyst stream events received by kind.",
		},
		[]string{"kind"},
	)
	sqlStatementsPerAnswer = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askwarehouse_sql_statements_per_answer",
			Help:    "Number of SQL statements extracted from one analyst answer.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)
	warehouseQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askwarehouse_warehouse_query_duration_seconds",
			Help:    "Warehouse statement execution latency including row materialisation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	warehouseRowLimitTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askwarehouse_warehouse_row_limit_truncations_total",
			Help: "Total number of statement results cut short by the configured row limit.",
		},
	)
	archiveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askwarehouse_archive_failures_total",
			Help: "Total number of answers that could not be archived.",
		},
	)
	analystBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askwarehouse_analyst_breaker_state",
			Help: "Analyst circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		askDurationSeconds,
		streamEventsTotal,
		sqlStatementsPerAnswer,
		warehouseQueryDurationSeconds,
		warehouseRowLimitTruncationsTotal,
		archiveFailuresTotal,
		analystBreakerState,
	)
}

func ObserveAsk(outcome string, statements int, elapsed time.Duration) {
	askRequestsTotal.WithLabelValues(outcome).Inc()
	askDurationSeconds.Observe(elapsed.Seconds())
	if outcome == "ok" {
		sqlStatementsPerAnswer.Observe(float64(statements))
	}
}

func IncrementStreamEvent(kind string) {
	switch kind {
	case "message.content.delta", "status", "error":
	default:
		kind = "other"
	}
	streamEventsTotal.WithLabelValues(kind).Inc()
}

func ObserveWarehouseQuery(err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	warehouseQueryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func IncrementRowLimitTruncation() {
	warehouseRowLimitTruncationsTotal.Inc()
}

func IncrementArchiveFailure() {
	archiveFailuresTotal.Inc()
}

func SetAnalystBreakerState(state int) {
	analystBreakerState.Set(float64(state))
}
