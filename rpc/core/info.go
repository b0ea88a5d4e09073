package core

import (
	"context"
	"errors"

	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Health reports whether the block store and state store agree on the
// chain tip.
func (e *Environment) Health(_ context.Context, _ *rpc.HealthRequest) (*rpc.HealthResponse, error) {
	blocks := e.blocks.Height()
	state := e.state.LastBlockHeight()

	resp := &rpc.HealthResponse{Status: HealthOK}
	check := rpc.HealthCheck{Name: "stores", Status: HealthOK}
	if state > blocks {
		check.Status = HealthDegraded
		check.Message = "state store is ahead of the block store"
		resp.Status = HealthDegraded
	}
	resp.Checks = append(resp.Checks, check)

	if e.mempool != nil {
		resp.Checks = append(resp.Checks, rpc.HealthCheck{Name: "mempool", Status: HealthOK})
	}
	return resp, nil
}

// NetInfo returns the node's listeners. The query service does not take
// part in peer-to-peer networking, so no peers are reported.
func (e *Environment) NetInfo(_ context.Context, _ *rpc.NetInfoRequest) (*rpc.NetInfoResponse, error) {
	return &rpc.NetInfoResponse{
		Listening: len(e.listeners) > 0,
		Listeners: append([]string(nil), e.listeners...),
		Peers:     []rpc.PeerInfo{},
	}, nil
}

// Status returns the node identity and its view of the chain.
func (e *Environment) Status(_ context.Context, _ *rpc.StatusRequest) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{NodeInfo: e.nodeInfo}

	if latest := e.blocks.Height(); latest > 0 {
		block, err := e.loadBlock(latest)
		if err != nil {
			return nil, err
		}
		resp.SyncInfo.LatestBlockHash = block.Hash()
		resp.SyncInfo.LatestBlockHeight = int64(latest)
		resp.SyncInfo.LatestBlockTime = block.Header.Time
		resp.SyncInfo.LatestAppHash = block.Header.AppHash
		e.metrics.SetBlockHeight(int64(latest))
	}
	if base := e.blocks.Base(); base > 0 {
		block, err := e.loadBlock(base)
		if err != nil {
			return nil, err
		}
		resp.SyncInfo.EarliestBlockHeight = int64(base)
		resp.SyncInfo.EarliestBlockTime = block.Header.Time
	}
	e.metrics.SetStateStoreVersion(int64(e.state.LastBlockHeight()))
	resp.SyncInfo.CatchingUp = e.state.LastBlockHeight() < e.blocks.Height()
	return resp, nil
}

// ConsensusState reports the round state following the last stored block.
func (e *Environment) ConsensusState(_ context.Context, _ *rpc.ConsensusStateRequest) (*rpc.ConsensusStateResponse, error) {
	latest := e.blocks.Height()
	state := rpc.RoundState{
		Height: int64(latest) + 1,
		Step:   "RoundStepNewHeight",
	}
	if latest > 0 {
		block, err := e.loadBlock(latest)
		if err != nil {
			return nil, err
		}
		state.StartTime = block.Header.Time
	}
	return &rpc.ConsensusStateResponse{RoundState: state}, nil
}

// BroadcastTxSync admits a transaction into the mempool and returns the
// admission result. Rejections are reported in the response code.
func (e *Environment) BroadcastTxSync(_ context.Context, req *rpc.BroadcastTxRequest) (*rpc.BroadcastTxResponse, error) {
	if e.mempool == nil {
		return nil, rpc.ErrMethodUnsupported.WithData(rpc.MethodBroadcastTxSync)
	}

	hash := types.HashTx(req.Tx)
	err := e.mempool.AddTx(req.Tx)
	e.metrics.SetMempoolSize(e.mempool.Size())
	if err == nil {
		e.logger.Debug("transaction admitted", logging.Hash(hash))
		return &rpc.BroadcastTxResponse{Code: uint32(types.CodeOK), Hash: hash}, nil
	}

	e.metrics.IncTxsRejected(rejectionReason(err))
	e.logger.Debug("transaction rejected", logging.Hash(hash), logging.Error(err))
	return &rpc.BroadcastTxResponse{
		Code: uint32(types.CodeTxRejected),
		Log:  err.Error(),
		Hash: hash,
	}, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, types.ErrTxAlreadyExists):
		return metrics.ReasonTxDuplicate
	case errors.Is(err, types.ErrMempoolFull):
		return metrics.ReasonMempoolFull
	case errors.Is(err, types.ErrTxTooLarge):
		return metrics.ReasonTxTooLarge
	default:
		return metrics.ReasonTxInvalid
	}
}
