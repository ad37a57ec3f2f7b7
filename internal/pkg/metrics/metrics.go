// Package metrics provides Prometheus metrics for the RBAC graph service (RED + build pipeline + WebSocket).
// Dashboards can rely on these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rbacgraph"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// GraphBuildDurationSeconds is the index, filter and build latency.
	GraphBuildDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_build_duration_seconds",
			Help:      "Access graph build duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	// GraphLayoutDurationSeconds is the layout latency.
	GraphLayoutDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_layout_duration_seconds",
			Help:      "Access graph layout duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// GraphNodes is the node count of built graphs, by node kind.
	GraphNodes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Number of nodes per built graph, by kind.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
		},
		[]string{"kind"},
	)

	// GraphDiagnosticsTotal counts dropped or repaired records by diagnostic code.
	GraphDiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_diagnostics_total",
			Help:      "Total number of build diagnostics by code.",
		},
		[]string{"code"},
	)

	// WebSocketConnectionsActive is current number of WebSocket clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	// GraphCacheHitsTotal counts memoized graph hits.
	GraphCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_cache_hits_total",
			Help:      "Total number of graph cache hits.",
		},
	)

	// GraphCacheMissesTotal counts memoized graph misses.
	GraphCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_cache_misses_total",
			Help:      "Total number of graph cache misses.",
		},
	)

	// DBQueryDurationSeconds is snapshot store query latency by operation.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Snapshot store query duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	// LiveSnapshotDurationSeconds is the latency of reading RBAC objects from a cluster.
	LiveSnapshotDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_snapshot_duration_seconds",
			Help:      "Duration of live cluster snapshot collection in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// LiveCircuitBreakerState is the live capture breaker state (0=closed, 1=open, 2=half-open).
	LiveCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_circuit_breaker_state",
			Help:      "Live snapshot circuit breaker state by kube context (0=closed, 1=open, 2=half-open).",
		},
		[]string{"context"},
	)

	// LiveCircuitBreakerTransitionsTotal counts breaker state changes.
	LiveCircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_circuit_breaker_transitions_total",
			Help:      "Total number of live snapshot circuit breaker state transitions.",
		},
		[]string{"context", "from", "to"},
	)
)
