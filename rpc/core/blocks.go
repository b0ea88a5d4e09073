package core

import (
	"context"
	"errors"

	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// Block returns the block at the requested height.
func (e *Environment) Block(_ context.Context, req *rpc.BlockRequest) (*rpc.BlockResponse, error) {
	height, err := e.resolveHeight(req.Height)
	if err != nil {
		return nil, err
	}
	block, err := e.loadBlock(height)
	if err != nil {
		return nil, err
	}
	return &rpc.BlockResponse{
		BlockID: rpc.BlockID{Hash: block.Hash()},
		Block:   block,
	}, nil
}

// BlockResults returns the transaction results of the block at the
// requested height.
func (e *Environment) BlockResults(_ context.Context, req *rpc.BlockResultsRequest) (*rpc.BlockResultsResponse, error) {
	height, err := e.resolveHeight(req.Height)
	if err != nil {
		return nil, err
	}
	results, err := e.blocks.LoadBlockResults(height)
	if err != nil {
		return nil, blockError(height, err)
	}
	return &rpc.BlockResultsResponse{
		Height:     int64(height),
		TxsResults: results.TxResults,
		AppHash:    results.AppHash,
	}, nil
}

// Blockchain returns block metas for heights in [MinHeight, MaxHeight],
// newest first, at most MaxBlockchainHeaders of them.
func (e *Environment) Blockchain(_ context.Context, req *rpc.BlockchainRequest) (*rpc.BlockchainResponse, error) {
	latest := e.blocks.Height()
	minHeight, maxHeight, err := filterMinMax(
		int64(e.blocks.Base()), int64(latest), req.MinHeight, req.MaxHeight, MaxBlockchainHeaders)
	if err != nil {
		return nil, err
	}

	metas := make([]rpc.BlockMeta, 0, maxHeight-minHeight+1)
	for h := maxHeight; h >= minHeight && h > 0; h-- {
		block, err := e.loadBlock(types.Height(h))
		if err != nil {
			return nil, err
		}
		meta, err := blockMeta(block)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return &rpc.BlockchainResponse{
		LastHeight: int64(latest),
		BlockMetas: metas,
	}, nil
}

// filterMinMax clamps a requested [min, max] range to the stored blocks
// and to limit entries ending at max. Zero bounds select the full range.
func filterMinMax(base, height, minHeight, maxHeight, limit int64) (int64, int64, error) {
	if minHeight < 0 || maxHeight < 0 {
		return minHeight, maxHeight, rpc.ErrInvalidParams.WithData("heights must be non-negative")
	}
	if minHeight == 0 {
		minHeight = 1
	}
	if maxHeight == 0 {
		maxHeight = height
	}

	maxHeight = min(height, maxHeight)
	minHeight = max(base, minHeight, maxHeight-limit+1)

	if minHeight > maxHeight {
		return minHeight, maxHeight, rpc.ErrInvalidParams.WithDataf(
			"min height %d can't be greater than max height %d", minHeight, maxHeight)
	}
	return minHeight, maxHeight, nil
}

func blockMeta(block *types.Block) (rpc.BlockMeta, error) {
	data, err := block.Encode()
	if err != nil {
		return rpc.BlockMeta{}, err
	}
	return rpc.BlockMeta{
		BlockID:   rpc.BlockID{Hash: block.Hash()},
		BlockSize: int64(len(data)),
		Header:    block.Header,
		NumTxs:    int64(len(block.Txs)),
	}, nil
}

// Commit returns the header and commit of the block at the requested
// height. Canonical is false when no commit was stored for the block.
func (e *Environment) Commit(_ context.Context, req *rpc.CommitRequest) (*rpc.CommitResponse, error) {
	height, err := e.resolveHeight(req.Height)
	if err != nil {
		return nil, err
	}
	block, err := e.loadBlock(height)
	if err != nil {
		return nil, err
	}

	commit, err := e.blocks.LoadCommit(height)
	switch {
	case errors.Is(err, types.ErrBlockNotFound):
		return &rpc.CommitResponse{SignedHeader: rpc.SignedHeader{Header: block.Header}}, nil
	case err != nil:
		return nil, blockError(height, err)
	}
	return &rpc.CommitResponse{
		SignedHeader: rpc.SignedHeader{Header: block.Header, Commit: commit},
		Canonical:    true,
	}, nil
}

// ConsensusParams returns the consensus parameters in force at the
// requested height.
func (e *Environment) ConsensusParams(_ context.Context, req *rpc.ConsensusParamsRequest) (*rpc.ConsensusParamsResponse, error) {
	height, err := e.resolveHeight(req.Height)
	if err != nil {
		return nil, err
	}
	return &rpc.ConsensusParamsResponse{
		BlockHeight:     int64(height),
		ConsensusParams: e.params,
	}, nil
}
