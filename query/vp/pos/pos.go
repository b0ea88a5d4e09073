// Package pos serves queries over proof-of-stake validity predicate state:
// validator membership, stake and commission, and the consensus set.
package pos

import (
	"fmt"

	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/types"
)

// Prefix is the path segment the subtree is mounted under within "vp".
const Prefix = "pos"

// CommissionRateDenominator is the denominator of commission rates,
// which are expressed in basis points.
const CommissionRateDenominator = 10_000

// CommissionPair is a validator's commission rate and the largest change
// to it allowed per epoch, both in basis points.
type CommissionPair struct {
	Rate              uint32 `json:"rate" cramberry:"1"`
	MaxChangePerEpoch uint32 `json:"max_change_per_epoch" cramberry:"2"`
}

// Validate checks that both values are within [0, CommissionRateDenominator].
func (c CommissionPair) Validate() error {
	if c.Rate > CommissionRateDenominator || c.MaxChangePerEpoch > CommissionRateDenominator {
		return fmt.Errorf("%w: commission rate %d or max change %d exceeds %d basis points",
			types.ErrInvalidArgument, c.Rate, c.MaxChangePerEpoch, CommissionRateDenominator)
	}
	return nil
}

// WeightedValidator is a member of the consensus validator set.
type WeightedValidator struct {
	Address     string       `json:"address" cramberry:"1"`
	BondedStake types.Amount `json:"bonded_stake" cramberry:"2"`
}

// Storage keys of the proof-of-stake state.
var (
	KeyConsensusSet = []byte("pos/validator_set/consensus")
	KeyTotalStake   = []byte("pos/total_stake")
)

// StakeKey returns the key of a validator's bonded stake. Its presence
// marks the address as a validator.
func StakeKey(addr string) []byte {
	return []byte("pos/validator/" + addr + "/stake")
}

// CommissionKey returns the key of a validator's commission pair.
func CommissionKey(addr string) []byte {
	return []byte("pos/validator/" + addr + "/commission")
}

// Router returns the proof-of-stake subtree.
func Router() *router.Router {
	validator := router.New(
		router.Leaf("is_validator", isValidator, router.Args("addr")),
		router.Leaf("stake", validatorStake, router.Args("addr")),
		router.Leaf("commission", validatorCommission, router.Args("addr")),
	)
	validatorSet := router.New(
		router.Leaf("consensus", consensusSet),
	)
	return router.New(
		router.Sub("validator", validator),
		router.Sub("validator_set", validatorSet),
		router.Leaf("total_stake", totalStake),
	)
}

func isValidator(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	addr, err := address(args)
	if err != nil {
		return nil, err
	}
	has, err := ctx.Storage.Has(StakeKey(addr), req.Height)
	if err != nil {
		return nil, fmt.Errorf("checking validator %s: %w", addr, err)
	}
	return router.Respond(has)
}

// validatorStake returns nil for addresses that are not validators.
func validatorStake(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	addr, err := address(args)
	if err != nil {
		return nil, err
	}
	stake, err := read[types.Amount](ctx, StakeKey(addr), req.Height)
	if err != nil {
		return nil, err
	}
	return router.Respond(stake)
}

// validatorCommission returns nil for addresses that are not validators.
func validatorCommission(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	addr, err := address(args)
	if err != nil {
		return nil, err
	}
	pair, err := read[CommissionPair](ctx, CommissionKey(addr), req.Height)
	if err != nil {
		return nil, err
	}
	return router.Respond(pair)
}

func consensusSet(ctx router.RequestCtx, req *router.RequestQuery, _ []string) (*router.EncodedResponseQuery, error) {
	set, err := read[[]WeightedValidator](ctx, KeyConsensusSet, req.Height)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return router.Respond([]WeightedValidator{})
	}
	return router.Respond(*set)
}

func totalStake(ctx router.RequestCtx, req *router.RequestQuery, _ []string) (*router.EncodedResponseQuery, error) {
	total, err := read[types.Amount](ctx, KeyTotalStake, req.Height)
	if err != nil {
		return nil, err
	}
	if total == nil {
		return router.Respond(types.Amount(0))
	}
	return router.Respond(*total)
}

// read decodes the value at key, returning nil when the key is absent.
func read[T any](ctx router.RequestCtx, key []byte, height types.Height) (*T, error) {
	raw, err := ctx.Storage.Get(key, height)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if raw == nil {
		return nil, nil
	}
	v, err := router.Decode[T](raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func address(args []string) (string, error) {
	if args[0] == "" {
		return "", fmt.Errorf("%w: empty validator address", types.ErrInvalidArgument)
	}
	return args[0], nil
}
