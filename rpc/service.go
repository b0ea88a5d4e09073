// Package rpc defines the consensus-native RPC methods a node serves
// alongside path queries: typed requests and responses, the Service
// interface implemented by the node, and in-process dispatch.
//
// Transports live in sub-packages and only move typed values; all of them
// dispatch through Serve so every transport behaves identically.
package rpc

import (
	"context"
	"fmt"
	"sort"

	"github.com/blockberries/queryberry/tracing"
)

// Service is the node-side implementation of every RPC method.
type Service interface {
	ABCIInfo(ctx context.Context, req *ABCIInfoRequest) (*ABCIInfoResponse, error)
	ABCIQuery(ctx context.Context, req *ABCIQueryRequest) (*ABCIQueryResponse, error)
	Block(ctx context.Context, req *BlockRequest) (*BlockResponse, error)
	BlockResults(ctx context.Context, req *BlockResultsRequest) (*BlockResultsResponse, error)
	BlockSearch(ctx context.Context, req *BlockSearchRequest) (*BlockSearchResponse, error)
	Blockchain(ctx context.Context, req *BlockchainRequest) (*BlockchainResponse, error)
	BroadcastTxSync(ctx context.Context, req *BroadcastTxRequest) (*BroadcastTxResponse, error)
	Commit(ctx context.Context, req *CommitRequest) (*CommitResponse, error)
	ConsensusParams(ctx context.Context, req *ConsensusParamsRequest) (*ConsensusParamsResponse, error)
	ConsensusState(ctx context.Context, req *ConsensusStateRequest) (*ConsensusStateResponse, error)
	Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error)
	NetInfo(ctx context.Context, req *NetInfoRequest) (*NetInfoResponse, error)
	Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error)
	TxSearch(ctx context.Context, req *TxSearchRequest) (*TxSearchResponse, error)
}

// Serve dispatches a typed request to the matching Service method.
// The returned value has the type allocated by req.NewResponse. Each call
// is recorded as a span named after the method.
func Serve(ctx context.Context, svc Service, req Request) (any, error) {
	if req == nil {
		return nil, ErrInvalidRequest.WithData("nil request")
	}
	ctx, span := tracing.Start(ctx, "rpc."+req.Method(), tracing.AttrRPCMethod.String(req.Method()))
	result, err := dispatch(ctx, svc, req)
	tracing.End(span, err)
	return result, err
}

func dispatch(ctx context.Context, svc Service, req Request) (any, error) {
	switch r := req.(type) {
	case *ABCIInfoRequest:
		return svc.ABCIInfo(ctx, r)
	case *ABCIQueryRequest:
		return svc.ABCIQuery(ctx, r)
	case *BlockRequest:
		return svc.Block(ctx, r)
	case *BlockResultsRequest:
		return svc.BlockResults(ctx, r)
	case *BlockSearchRequest:
		return svc.BlockSearch(ctx, r)
	case *BlockchainRequest:
		return svc.Blockchain(ctx, r)
	case *BroadcastTxRequest:
		return svc.BroadcastTxSync(ctx, r)
	case *CommitRequest:
		return svc.Commit(ctx, r)
	case *ConsensusParamsRequest:
		return svc.ConsensusParams(ctx, r)
	case *ConsensusStateRequest:
		return svc.ConsensusState(ctx, r)
	case *HealthRequest:
		return svc.Health(ctx, r)
	case *NetInfoRequest:
		return svc.NetInfo(ctx, r)
	case *StatusRequest:
		return svc.Status(ctx, r)
	case *TxSearchRequest:
		return svc.TxSearch(ctx, r)
	default:
		return nil, ErrMethodNotFound.WithData(req.Method())
	}
}

var registry = map[string]func() Request{
	MethodABCIInfo:        func() Request { return new(ABCIInfoRequest) },
	MethodABCIQuery:       func() Request { return new(ABCIQueryRequest) },
	MethodBlock:           func() Request { return new(BlockRequest) },
	MethodBlockResults:    func() Request { return new(BlockResultsRequest) },
	MethodBlockSearch:     func() Request { return new(BlockSearchRequest) },
	MethodBlockchain:      func() Request { return new(BlockchainRequest) },
	MethodBroadcastTxSync: func() Request { return new(BroadcastTxRequest) },
	MethodCommit:          func() Request { return new(CommitRequest) },
	MethodConsensusParams: func() Request { return new(ConsensusParamsRequest) },
	MethodConsensusState:  func() Request { return new(ConsensusStateRequest) },
	MethodHealth:          func() Request { return new(HealthRequest) },
	MethodNetInfo:         func() Request { return new(NetInfoRequest) },
	MethodStatus:          func() Request { return new(StatusRequest) },
	MethodTxSearch:        func() Request { return new(TxSearchRequest) },
}

// NewRequest allocates an empty request for a method name, ready to be
// decoded into by a transport.
func NewRequest(method string) (Request, error) {
	ctor, ok := registry[method]
	if !ok {
		return nil, ErrMethodNotFound.WithData(fmt.Sprintf("%q", method))
	}
	return ctor(), nil
}

// Methods returns every method name in sorted order.
func Methods() []string {
	out := make([]string, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
