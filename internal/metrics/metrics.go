package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracelog_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracelog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Pipeline metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_events_total",
			Help: "Total number of events accepted by the facade",
		},
		[]string{"stream", "level"},
	)

	InvalidEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_invalid_events_total",
			Help: "Total number of facade calls rejected for missing required fields",
		},
		[]string{"kind"},
	)

	RedactionErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracelog_redaction_errors_total",
			Help: "Total number of values replaced because they could not be serialized",
		},
	)

	FormatFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracelog_format_failures_total",
			Help: "Total number of events rendered as the fallback line",
		},
	)

	// File sink metrics
	FileWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_file_writes_total",
			Help: "Total number of lines appended to log files",
		},
		[]string{"file", "status"},
	)

	FileRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_file_rotations_total",
			Help: "Total number of log file rotations",
		},
		[]string{"file"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracelog_queue_depth",
			Help: "Number of events waiting for remote delivery",
		},
		[]string{"stream"},
	)

	QueueDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_queue_dropped_total",
			Help: "Total number of events dropped before remote delivery",
		},
		[]string{"stream", "reason"},
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracelog_batch_size",
			Help:    "Number of events per remote batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"stream"},
	)

	// Remote sink metrics
	RemoteRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_remote_rows_total",
			Help: "Total number of rows handed to the remote store",
		},
		[]string{"table", "status"},
	)

	RemoteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracelog_remote_failures_total",
			Help: "Total number of failed remote batch inserts",
		},
		[]string{"table", "reason"},
	)

	RemoteInsertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracelog_remote_insert_duration_seconds",
			Help:    "Remote batch insert latencies in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"table"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracelog_circuit_breaker_state",
			Help: "Remote store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Connection pool metrics
	DBPoolOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracelog_db_pool_open_connections",
			Help: "Open connections in the remote store pool",
		},
	)

	// System metrics
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracelog_build_info",
			Help: "Build information about tracelog",
		},
		[]string{"version", "go_version"},
	)
)
