package metrics

import (
	"net/http"
	"time"
)

// NopMetrics is a no-op implementation of the Metrics interface.
// Use this when metrics collection is disabled.
type NopMetrics struct{}

// NewNopMetrics creates a new NopMetrics instance.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// RPC metrics (no-op)

func (m *NopMetrics) IncRPCRequests(transport, method, result string)        {}
func (m *NopMetrics) ObserveRPCLatency(method string, latency time.Duration) {}
func (m *NopMetrics) IncRateLimited(transport string)                        {}
func (m *NopMetrics) SetWebsocketConnections(count int)                      {}

// Query metrics (no-op)

func (m *NopMetrics) IncQueries(subtree, result string)                         {}
func (m *NopMetrics) ObserveQueryLatency(subtree string, latency time.Duration) {}

// Chain metrics (no-op)

func (m *NopMetrics) SetBlockHeight(height int64)        {}
func (m *NopMetrics) SetStateStoreVersion(version int64) {}

// Transaction metrics (no-op)

func (m *NopMetrics) SetMempoolSize(size int)      {}
func (m *NopMetrics) IncTxsRejected(reason string) {}

// HTTPHandler returns nil since there's nothing to serve.
func (m *NopMetrics) HTTPHandler() http.Handler {
	return nil
}

var _ Metrics = (*NopMetrics)(nil)
