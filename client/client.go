// Package client issues path queries and consensus-native RPC calls
// against a node, either remotely over a Transport or in-process against
// a local state snapshot. Both variants implement Client and behave
// identically for the same logical query.
package client

import (
	"context"
	"fmt"

	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// Client is the query interface shared by remote and local clients.
// Implementations must be safe for concurrent use.
type Client interface {
	// Request issues a path query. Height 0 queries the latest committed
	// height. A protocol-level failure reported by a remote node surfaces
	// as a *types.QueryError.
	Request(ctx context.Context, path string, data []byte, height types.Height, prove bool) (*router.EncodedResponseQuery, error)

	// Perform issues a consensus-native RPC call. The result has the type
	// allocated by req.NewResponse.
	Perform(ctx context.Context, req rpc.Request) (any, error)
}

// Perform issues req and returns its result as T.
func Perform[T any](ctx context.Context, c Client, req rpc.Request) (T, error) {
	var zero T
	res, err := c.Perform(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, expected %T", types.ErrDecode, req.Method(), res, zero)
	}
	return typed, nil
}

// SimpleRequest queries path at the latest height without data or proof
// and returns the raw response payload.
func SimpleRequest(ctx context.Context, c Client, path string) ([]byte, error) {
	resp, err := c.Request(ctx, path, nil, types.LatestHeight, false)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Query issues a path query and decodes the payload into T.
func Query[T any](ctx context.Context, c Client, path string, data []byte, height types.Height, prove bool) (*router.ResponseQuery[T], error) {
	resp, err := c.Request(ctx, path, data, height, prove)
	if err != nil {
		return nil, err
	}
	return router.DecodeResponse[T](resp)
}

// Get is like SimpleRequest but decodes the payload into T.
func Get[T any](ctx context.Context, c Client, path string) (T, error) {
	data, err := SimpleRequest(ctx, c, path)
	if err != nil {
		var zero T
		return zero, err
	}
	return router.Decode[T](data)
}
