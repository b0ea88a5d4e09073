package client

import (
	"context"

	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// ABCIInfo returns information about the application behind the node.
func ABCIInfo(ctx context.Context, c Client) (*rpc.ABCIInfoResponse, error) {
	return Perform[*rpc.ABCIInfoResponse](ctx, c, &rpc.ABCIInfoRequest{})
}

// ABCIQuery issues a raw abci_query call and returns the wire response,
// including non-OK result codes.
func ABCIQuery(ctx context.Context, c Client, path string, data []byte, height types.Height, prove bool) (*rpc.ABCIQueryResponse, error) {
	h, err := height.Int64()
	if err != nil {
		return nil, err
	}
	return Perform[*rpc.ABCIQueryResponse](ctx, c, &rpc.ABCIQueryRequest{
		Path:   path,
		Data:   data,
		Height: h,
		Prove:  prove,
	})
}

// BroadcastTxSync submits tx to the node's mempool.
func BroadcastTxSync(ctx context.Context, c Client, tx types.Tx) (*rpc.BroadcastTxResponse, error) {
	return Perform[*rpc.BroadcastTxResponse](ctx, c, &rpc.BroadcastTxRequest{Tx: tx})
}

// LatestBlock returns the latest stored block.
func LatestBlock(ctx context.Context, c Client) (*rpc.BlockResponse, error) {
	return Perform[*rpc.BlockResponse](ctx, c, &rpc.BlockRequest{})
}

// Block returns the block at height.
func Block(ctx context.Context, c Client, height int64) (*rpc.BlockResponse, error) {
	return Perform[*rpc.BlockResponse](ctx, c, &rpc.BlockRequest{Height: rpc.HeightPtr(height)})
}

// BlockSearch returns blocks whose events match query.
func BlockSearch(ctx context.Context, c Client, query string, page, perPage int32, orderBy string) (*rpc.BlockSearchResponse, error) {
	return Perform[*rpc.BlockSearchResponse](ctx, c, &rpc.BlockSearchRequest{
		Query:   query,
		Page:    page,
		PerPage: perPage,
		OrderBy: orderBy,
	})
}

// BlockResults returns the execution results of the block at height.
func BlockResults(ctx context.Context, c Client, height int64) (*rpc.BlockResultsResponse, error) {
	return Perform[*rpc.BlockResultsResponse](ctx, c, &rpc.BlockResultsRequest{Height: rpc.HeightPtr(height)})
}

// LatestBlockResults returns the execution results of the latest block.
func LatestBlockResults(ctx context.Context, c Client) (*rpc.BlockResultsResponse, error) {
	return Perform[*rpc.BlockResultsResponse](ctx, c, &rpc.BlockResultsRequest{})
}

// TxSearch returns transactions whose events match query.
func TxSearch(ctx context.Context, c Client, query string, prove bool, page, perPage int32, orderBy string) (*rpc.TxSearchResponse, error) {
	return Perform[*rpc.TxSearchResponse](ctx, c, &rpc.TxSearchRequest{
		Query:   query,
		Prove:   prove,
		Page:    page,
		PerPage: perPage,
		OrderBy: orderBy,
	})
}

// Blockchain returns block metadata for heights in [minHeight, maxHeight].
// The bounds are passed to the node unmodified; the node validates them.
func Blockchain(ctx context.Context, c Client, minHeight, maxHeight int64) (*rpc.BlockchainResponse, error) {
	return Perform[*rpc.BlockchainResponse](ctx, c, &rpc.BlockchainRequest{
		MinHeight: minHeight,
		MaxHeight: maxHeight,
	})
}

// Commit returns the signed header of the block at height.
func Commit(ctx context.Context, c Client, height int64) (*rpc.CommitResponse, error) {
	return Perform[*rpc.CommitResponse](ctx, c, &rpc.CommitRequest{Height: rpc.HeightPtr(height)})
}

// LatestCommit returns the signed header of the latest block.
func LatestCommit(ctx context.Context, c Client) (*rpc.CommitResponse, error) {
	return Perform[*rpc.CommitResponse](ctx, c, &rpc.CommitRequest{})
}

// ConsensusParams returns the consensus parameters at height.
func ConsensusParams(ctx context.Context, c Client, height int64) (*rpc.ConsensusParamsResponse, error) {
	return Perform[*rpc.ConsensusParamsResponse](ctx, c, &rpc.ConsensusParamsRequest{Height: rpc.HeightPtr(height)})
}

// LatestConsensusParams returns the consensus parameters at the latest height.
func LatestConsensusParams(ctx context.Context, c Client) (*rpc.ConsensusParamsResponse, error) {
	return Perform[*rpc.ConsensusParamsResponse](ctx, c, &rpc.ConsensusParamsRequest{})
}

// ConsensusState returns the node's current round state.
func ConsensusState(ctx context.Context, c Client) (*rpc.ConsensusStateResponse, error) {
	return Perform[*rpc.ConsensusStateResponse](ctx, c, &rpc.ConsensusStateRequest{})
}

// Health returns the node's health report.
func Health(ctx context.Context, c Client) (*rpc.HealthResponse, error) {
	return Perform[*rpc.HealthResponse](ctx, c, &rpc.HealthRequest{})
}

// NetInfo returns the node's network information.
func NetInfo(ctx context.Context, c Client) (*rpc.NetInfoResponse, error) {
	return Perform[*rpc.NetInfoResponse](ctx, c, &rpc.NetInfoRequest{})
}

// Status returns the node's identity and sync status.
func Status(ctx context.Context, c Client) (*rpc.StatusResponse, error) {
	return Perform[*rpc.StatusResponse](ctx, c, &rpc.StatusRequest{})
}
