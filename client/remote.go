package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// Transport carries RPC calls to a node.
//
// Call encodes params, invokes method and decodes the result into result.
// Errors reported by the node must be returned as *rpc.RPCError and
// undecodable responses must wrap types.ErrDecode; every other error is
// treated as a connection-level failure.
type Transport interface {
	Call(ctx context.Context, method string, params, result any) error
	Close() error
}

// Remote is a Client backed by a Transport to a live node.
type Remote struct {
	transport Transport
	logger    *logging.Logger
}

// RemoteOption configures a Remote client.
type RemoteOption func(*Remote)

// WithLogger sets the logger of a Remote client.
func WithLogger(logger *logging.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote creates a client that sends every call over t.
func NewRemote(t Transport, opts ...RemoteOption) *Remote {
	r := &Remote{
		transport: t,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("client")
	return r
}

// Request sends a path query as an abci_query call.
func (r *Remote) Request(ctx context.Context, path string, data []byte, height types.Height, prove bool) (*router.EncodedResponseQuery, error) {
	h, err := height.Int64()
	if err != nil {
		return nil, err
	}

	resp := new(rpc.ABCIQueryResponse)
	if err := r.call(ctx, rpc.MethodABCIQuery, &rpc.ABCIQueryRequest{
		Path:   path,
		Data:   data,
		Height: h,
		Prove:  prove,
	}, resp); err != nil {
		return nil, err
	}

	res := resp.Response
	if !res.Code.IsOK() {
		r.logger.Debug("query rejected by node",
			logging.Path(path),
			logging.Code(uint32(res.Code)))
		return nil, types.NewQueryError(res.Info, res.Code)
	}

	value := res.Value
	if len(value) == 0 {
		value = nil
	}
	return &router.EncodedResponseQuery{
		Data:  value,
		Info:  res.Info,
		Proof: res.ProofOps,
	}, nil
}

// Perform sends a consensus-native RPC call.
func (r *Remote) Perform(ctx context.Context, req rpc.Request) (any, error) {
	if req == nil {
		return nil, rpc.ErrInvalidRequest.WithData("nil request")
	}
	resp := req.NewResponse()
	if err := r.call(ctx, req.Method(), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the underlying transport.
func (r *Remote) Close() error {
	return r.transport.Close()
}

func (r *Remote) call(ctx context.Context, method string, params, result any) error {
	err := r.transport.Call(ctx, method, params, result)
	if err == nil {
		return nil
	}

	if _, ok := rpc.IsRPCError(err); ok {
		return err
	}
	if errors.Is(err, types.ErrDecode) || errors.Is(err, types.ErrTransport) {
		return err
	}
	r.logger.Debug("transport failure", logging.Method(method), logging.Error(err))
	return fmt.Errorf("%w: %s: %w", types.ErrTransport, method, err)
}

var _ Client = (*Remote)(nil)
