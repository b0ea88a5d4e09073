// Package metrics collects operational metrics for the query service.
package metrics

import (
	"net/http"
	"time"
)

// Metrics defines the interface for collecting query service metrics.
// All methods are designed to be thread-safe and non-blocking.
type Metrics interface {
	// RPC metrics
	IncRPCRequests(transport, method, result string)
	ObserveRPCLatency(method string, latency time.Duration)
	IncRateLimited(transport string)
	SetWebsocketConnections(count int)

	// Query metrics
	IncQueries(subtree, result string)
	ObserveQueryLatency(subtree string, latency time.Duration)

	// Chain metrics
	SetBlockHeight(height int64)
	SetStateStoreVersion(version int64)

	// Transaction metrics
	SetMempoolSize(size int)
	IncTxsRejected(reason string)

	// HTTPHandler returns a handler serving the collected metrics,
	// or nil when nothing is collected.
	HTTPHandler() http.Handler
}

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Transport labels.
const (
	TransportHTTP      = "http"
	TransportWebsocket = "websocket"
	TransportGRPC      = "grpc"
	TransportLocal     = "local"
)

// Transaction rejection reason labels.
const (
	ReasonMempoolFull = "mempool_full"
	ReasonTxTooLarge  = "tx_too_large"
	ReasonTxInvalid   = "tx_invalid"
	ReasonTxDuplicate = "tx_duplicate"
)

// Result returns the result label for an error.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
