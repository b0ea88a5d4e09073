package token

import (
	"context"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/types"
)

// Querier issues typed token queries through a client.
type Querier struct {
	client client.Client
	mount  string
}

// NewQuerier creates a querier for the subtree served under mount,
// e.g. "vp/token".
func NewQuerier(c client.Client, mount string) *Querier {
	return &Querier{client: c, mount: mount}
}

// Balance returns owner's balance of token as of height.
func (q *Querier) Balance(ctx context.Context, token, owner string, height types.Height, prove bool) (*router.ResponseQuery[types.Amount], error) {
	return client.Query[types.Amount](ctx, q.client, q.mount+"/balance/"+token+"/"+owner, nil, height, prove)
}

// Denomination returns the number of decimal places of token.
func (q *Querier) Denomination(ctx context.Context, token string) (uint8, error) {
	return client.Get[uint8](ctx, q.client, q.mount+"/denomination/"+token)
}

// TotalSupply returns the total supply of token.
func (q *Querier) TotalSupply(ctx context.Context, token string) (types.Amount, error) {
	return client.Get[types.Amount](ctx, q.client, q.mount+"/total_supply/"+token)
}

// Balances returns the balances of token held by owners.
func (q *Querier) Balances(ctx context.Context, token string, owners []string) ([]OwnerBalance, error) {
	data, err := router.Encode(owners)
	if err != nil {
		return nil, err
	}
	resp, err := client.Query[[]OwnerBalance](ctx, q.client, q.mount+"/balances/"+token, data, types.LatestHeight, false)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
