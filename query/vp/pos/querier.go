package pos

import (
	"context"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/types"
)

// Querier issues typed proof-of-stake queries through a client.
type Querier struct {
	client client.Client
	mount  string
}

// NewQuerier creates a querier for the subtree served under mount,
// e.g. "vp/pos".
func NewQuerier(c client.Client, mount string) *Querier {
	return &Querier{client: c, mount: mount}
}

// IsValidator reports whether addr is a validator.
func (q *Querier) IsValidator(ctx context.Context, addr string) (bool, error) {
	return client.Get[bool](ctx, q.client, q.mount+"/validator/is_validator/"+addr)
}

// ValidatorStake returns the bonded stake of addr, or nil if it is not a validator.
func (q *Querier) ValidatorStake(ctx context.Context, addr string) (*types.Amount, error) {
	return client.Get[*types.Amount](ctx, q.client, q.mount+"/validator/stake/"+addr)
}

// ValidatorCommission returns the commission pair of addr, or nil if it is
// not a validator.
func (q *Querier) ValidatorCommission(ctx context.Context, addr string) (*CommissionPair, error) {
	return client.Get[*CommissionPair](ctx, q.client, q.mount+"/validator/commission/"+addr)
}

// ConsensusValidatorSet returns the consensus validator set.
func (q *Querier) ConsensusValidatorSet(ctx context.Context) ([]WeightedValidator, error) {
	return client.Get[[]WeightedValidator](ctx, q.client, q.mount+"/validator_set/consensus")
}

// TotalStake returns the total bonded stake.
func (q *Querier) TotalStake(ctx context.Context) (types.Amount, error) {
	return client.Get[types.Amount](ctx, q.client, q.mount+"/total_stake")
}
