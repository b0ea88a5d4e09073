package jsonrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/rpc"
)

// unknownMethod labels metrics of calls to unregistered methods.
const unknownMethod = "unknown"

// Processor executes JSON-RPC requests against a service. It is shared by
// the HTTP server and the websocket handler and is safe for concurrent use.
type Processor struct {
	svc       rpc.Service
	transport string
	limiter   *rpc.RateLimiter
	logger    *logging.Logger
	metrics   metrics.Metrics
}

// NewProcessor creates a processor labelling its metrics with transport.
// limiter may be nil.
func NewProcessor(svc rpc.Service, transport string, limiter *rpc.RateLimiter, logger *logging.Logger, m metrics.Metrics) *Processor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	return &Processor{
		svc:       svc,
		transport: transport,
		limiter:   limiter,
		logger:    logger,
		metrics:   m,
	}
}

// Process executes one request on behalf of client, the rate limiting key
// of the caller. It always returns a response.
func (p *Processor) Process(ctx context.Context, client string, req *Request) *Response {
	if req.JSONRPC != Version || req.Method == "" {
		return NewErrorResponse(req.ID, rpc.ErrInvalidRequest)
	}
	if err := p.limiter.Allow(client, req.Method); err != nil {
		p.metrics.IncRateLimited(p.transport)
		return NewErrorResponse(req.ID, rpc.AsRPCError(err))
	}

	typed, err := rpc.NewRequest(req.Method)
	if err != nil {
		p.metrics.IncRPCRequests(p.transport, unknownMethod, metrics.ResultFailure)
		return NewErrorResponse(req.ID, rpc.AsRPCError(err))
	}
	if hasParams(req.Params) {
		if err := json.Unmarshal(req.Params, typed); err != nil {
			p.metrics.IncRPCRequests(p.transport, req.Method, metrics.ResultFailure)
			return NewErrorResponse(req.ID, rpc.ErrInvalidParams.WithData(err.Error()))
		}
	}

	start := time.Now()
	result, err := rpc.Serve(ctx, p.svc, typed)
	p.metrics.ObserveRPCLatency(req.Method, time.Since(start))
	p.metrics.IncRPCRequests(p.transport, req.Method, metrics.Result(err))
	if err != nil {
		rpcErr := rpc.AsRPCError(err)
		if rpcErr.Code == rpc.CodeInternalError {
			p.logger.Warn("rpc call failed", logging.Method(req.Method), logging.Error(err))
		}
		return NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := NewResponse(req.ID, result)
	if err != nil {
		p.logger.Error("encoding rpc result", logging.Method(req.Method), logging.Error(err))
		return NewErrorResponse(req.ID, rpc.ErrInternalError)
	}
	return resp
}
