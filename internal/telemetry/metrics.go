// Package telemetry provides application-level observability for FlakeWatch.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<FW_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint is intended to be scraped by a Prometheus
// server every 15–60 seconds.  It is NOT served by the Gin router so the
// scrape path stays off the public ingress and bypasses rate limiting.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Run ingestion counters (created vs. idempotent duplicate, per project)
//   - Authentication failure counters (per failure reason)
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/runs) rather
// than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.  Ingestion counters are labelled by project ID,
// which is bounded by the number of registered tenants, never by run_id.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Ingestion metrics, recorded by the run ingestion handler.
//
// RunsIngestedTotal counts first-time run acceptances; RunsDuplicateTotal
// counts idempotent replays.  A rising duplicate rate usually means an
// upstream CI system is retrying aggressively, not that anything is wrong:
// duplicates are a success outcome.
//
// Example PromQL queries:
//   - Ingest rate by project:    sum by (project) (rate(runs_ingested_total[5m]))
//   - Replay ratio:              sum(rate(runs_duplicate_total[1h])) / sum(rate(runs_ingested_total[1h]))
var (
	RunsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runs_ingested_total",
			Help: "Total number of test runs stored for the first time, by project.",
		},
		[]string{"project"},
	)

	RunsDuplicateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runs_duplicate_total",
			Help: "Total number of idempotent duplicate run submissions, by project.",
		},
		[]string{"project"},
	)

	ValidationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "run_validation_failures_total",
			Help: "Total number of run submissions rejected by payload validation.",
		},
	)
)

// AuthFailuresTotal counts rejected authentication attempts by reason:
// "missing_header", "malformed_header", or "unknown_token".  An alert on a
// spike of unknown_token is a useful brute-force signal.
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total number of rejected authentication attempts, by reason.",
	},
	[]string{"reason"},
)

// StaleTokensGauge tracks how many issued tokens have gone unused beyond the
// configured age. Updated by the stale token notifier job on each sweep.
var StaleTokensGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "stale_tokens",
		Help: "Number of API tokens that have not been used within the configured maximum age.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
