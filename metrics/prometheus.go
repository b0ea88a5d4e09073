package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// RPC metrics
	rpcRequests          *prometheus.CounterVec
	rpcLatency           *prometheus.HistogramVec
	rateLimited          *prometheus.CounterVec
	websocketConnections prometheus.Gauge

	// Query metrics
	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec

	// Chain metrics
	blockHeight       prometheus.Gauge
	stateStoreVersion prometheus.Gauge

	// Transaction metrics
	mempoolSize prometheus.Gauge
	txsRejected *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,

		// RPC metrics
		rpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_requests_total",
				Help:      "Total number of RPC requests served",
			},
			[]string{"transport", "method", "result"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "Latency of RPC requests",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_rate_limited_total",
				Help:      "Total number of RPC requests rejected by the rate limiter",
			},
			[]string{"transport"},
		),
		websocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of open websocket connections",
			},
		),

		// Query metrics
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of path queries served",
			},
			[]string{"subtree", "result"},
		),
		queryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_latency_seconds",
				Help:      "Latency of path queries",
				Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"subtree"},
		),

		// Chain metrics
		blockHeight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "block_height",
				Help:      "Latest stored block height",
			},
		),
		stateStoreVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "statestore_version",
				Help:      "Last committed state store version",
			},
		),

		// Transaction metrics
		mempoolSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mempool_size",
				Help:      "Number of transactions in the mempool",
			},
		),
		txsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "txs_rejected_total",
				Help:      "Total number of broadcast transactions rejected",
			},
			[]string{"reason"},
		),
	}

	m.registry.MustRegister(
		m.rpcRequests,
		m.rpcLatency,
		m.rateLimited,
		m.websocketConnections,
		m.queries,
		m.queryLatency,
		m.blockHeight,
		m.stateStoreVersion,
		m.mempoolSize,
		m.txsRejected,
	)

	return m
}

// RPC metrics implementation

func (m *PrometheusMetrics) IncRPCRequests(transport, method, result string) {
	m.rpcRequests.WithLabelValues(transport, method, result).Inc()
}

func (m *PrometheusMetrics) ObserveRPCLatency(method string, latency time.Duration) {
	m.rpcLatency.WithLabelValues(method).Observe(latency.Seconds())
}

func (m *PrometheusMetrics) IncRateLimited(transport string) {
	m.rateLimited.WithLabelValues(transport).Inc()
}

func (m *PrometheusMetrics) SetWebsocketConnections(count int) {
	m.websocketConnections.Set(float64(count))
}

// Query metrics implementation

func (m *PrometheusMetrics) IncQueries(subtree, result string) {
	m.queries.WithLabelValues(subtree, result).Inc()
}

func (m *PrometheusMetrics) ObserveQueryLatency(subtree string, latency time.Duration) {
	m.queryLatency.WithLabelValues(subtree).Observe(latency.Seconds())
}

// Chain metrics implementation

func (m *PrometheusMetrics) SetBlockHeight(height int64) {
	m.blockHeight.Set(float64(height))
}

func (m *PrometheusMetrics) SetStateStoreVersion(version int64) {
	m.stateStoreVersion.Set(float64(version))
}

// Transaction metrics implementation

func (m *PrometheusMetrics) SetMempoolSize(size int) {
	m.mempoolSize.Set(float64(size))
}

func (m *PrometheusMetrics) IncTxsRejected(reason string) {
	m.txsRejected.WithLabelValues(reason).Inc()
}

// HTTPHandler returns a typed HTTP handler for serving metrics.
func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

var _ Metrics = (*PrometheusMetrics)(nil)
