package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

var (
	DatabaseQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total database queries",
		},
	)

	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultation_store_operations_total",
			Help: "Store client calls by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	StoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consultation_store_duration_seconds",
			Help:    "Duration of store client calls",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "operation"},
	)

	WizardSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "desk_sessions_open",
			Help: "Open desk sessions",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DatabaseQueries)
	prometheus.MustRegister(StoreOperations)
	prometheus.MustRegister(StoreDuration)
	prometheus.MustRegister(WizardSessions)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
