package core

import (
	"context"
	"slices"
	"time"

	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/tracing"
	"github.com/blockberries/queryberry/types"
)

// ABCIInfo returns information about the application state.
func (e *Environment) ABCIInfo(_ context.Context, _ *rpc.ABCIInfoRequest) (*rpc.ABCIInfoResponse, error) {
	info := rpc.ABCIInfo{
		Data:       e.nodeInfo.Moniker,
		Version:    e.nodeInfo.Version,
		AppVersion: e.appVersion,
	}
	if last, ok := e.state.LastBlock(); ok {
		info.LastBlockHeight = int64(last.Height)
		if root, err := e.appHash(last.Height); err == nil {
			info.LastBlockAppHash = root
		}
	}
	return &rpc.ABCIInfoResponse{Response: info}, nil
}

// appHash returns the state root committed at height, when the state view
// exposes one.
func (e *Environment) appHash(height types.Height) (types.Hash, error) {
	rooted, ok := e.state.(interface {
		RootHash(types.Height) ([]byte, error)
	})
	if !ok {
		return nil, nil
	}
	root, err := rooted.RootHash(height)
	return types.Hash(root), err
}

// ABCIQuery dispatches a path query through the query root. Handler
// failures are reported in the response code, never as RPC errors.
func (e *Environment) ABCIQuery(ctx context.Context, req *rpc.ABCIQueryRequest) (*rpc.ABCIQueryResponse, error) {
	tracing.Annotate(ctx,
		tracing.AttrQueryPath.String(req.Path),
		tracing.AttrQueryHeight.Int64(req.Height),
		tracing.AttrQueryProve.Bool(req.Prove))

	height, err := types.HeightFromInt64(req.Height)
	if err != nil {
		return queryFailure(ctx, err, req.Height), nil
	}

	start := time.Now()
	rctx := e.requestCtx()
	resp, err := e.root.Handle(rctx, &router.RequestQuery{
		Path:   req.Path,
		Data:   req.Data,
		Height: height,
		Prove:  req.Prove,
	})
	subtree := e.subtreeOf(req.Path)
	e.metrics.IncQueries(subtree, metrics.Result(err))
	e.metrics.ObserveQueryLatency(subtree, time.Since(start))

	if err != nil {
		e.logger.Debug("query failed",
			logging.Path(req.Path),
			logging.Height(uint64(height)),
			logging.Error(err))
		return queryFailure(ctx, err, req.Height), nil
	}

	// The snapshot reports the version the handler read from.
	served := req.Height
	if height.IsLatest() {
		served = int64(rctx.Storage.LastBlockHeight())
	}
	return &rpc.ABCIQueryResponse{Response: rpc.ResponseQuery{
		Code:     types.CodeOK,
		Info:     resp.Info,
		Key:      req.Data,
		Value:    resp.Data,
		ProofOps: resp.Proof,
		Height:   served,
	}}, nil
}

func queryFailure(ctx context.Context, err error, height int64) *rpc.ABCIQueryResponse {
	code := types.CodeFor(err)
	tracing.Annotate(ctx, tracing.AttrQueryCode.Int64(int64(code)))
	return &rpc.ABCIQueryResponse{Response: rpc.ResponseQuery{
		Code:   code,
		Log:    err.Error(),
		Info:   err.Error(),
		Height: height,
	}}
}

// subtreeOf returns the metrics label of a path: its root prefix when one
// is registered, otherwise "unknown". Empty paths are "none".
func (e *Environment) subtreeOf(path string) string {
	segments := router.SplitPath(path)
	if len(segments) == 0 || segments[0] == "" {
		return "none"
	}
	if slices.Contains(e.root.Prefixes(), segments[0]) {
		return segments[0]
	}
	return "unknown"
}
