package shell

import (
	"context"
	"strings"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/types"
)

// Querier issues typed shell queries through a client.
type Querier struct {
	client client.Client
}

// NewQuerier creates a shell querier over c.
func NewQuerier(c client.Client) *Querier {
	return &Querier{client: c}
}

// Epoch returns the current epoch.
func (q *Querier) Epoch(ctx context.Context) (types.Epoch, error) {
	return client.Get[types.Epoch](ctx, q.client, path("epoch"))
}

// LastBlock returns the last committed block, or nil before the first commit.
func (q *Querier) LastBlock(ctx context.Context) (*types.LastBlock, error) {
	return client.Get[*types.LastBlock](ctx, q.client, path("last_block"))
}

// NativeToken returns the address of the native token.
func (q *Querier) NativeToken(ctx context.Context) (string, error) {
	return client.Get[string](ctx, q.client, path("native_token"))
}

// Value returns the raw bytes stored at key as of height, empty if absent.
func (q *Querier) Value(ctx context.Context, key string, height types.Height, prove bool) (*router.EncodedResponseQuery, error) {
	return q.client.Request(ctx, path("value", key), nil, height, prove)
}

// Prefix returns every key-value pair under a key prefix as of height.
func (q *Querier) Prefix(ctx context.Context, key string, height types.Height, prove bool) (*router.ResponseQuery[[]PrefixValue], error) {
	return client.Query[[]PrefixValue](ctx, q.client, path("prefix", key), nil, height, prove)
}

// HasKey reports whether key exists in the latest committed state.
func (q *Querier) HasKey(ctx context.Context, key string) (bool, error) {
	return client.Get[bool](ctx, q.client, path("has_key", key))
}

// Accepted returns the accepted event of a transaction, or nil if none is recorded.
func (q *Querier) Accepted(ctx context.Context, hash types.Hash) (*events.Event, error) {
	return client.Get[*events.Event](ctx, q.client, path("accepted", hash.String()))
}

// Applied returns the applied event of a transaction, or nil if none is recorded.
func (q *Querier) Applied(ctx context.Context, hash types.Hash) (*events.Event, error) {
	return client.Get[*events.Event](ctx, q.client, path("applied", hash.String()))
}

func path(segments ...string) string {
	return Prefix + "/" + strings.Join(segments, "/")
}
