// Package token serves queries over multi-token validity predicate state.
package token

import (
	"fmt"

	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/types"
)

// Prefix is the path segment the subtree is mounted under within "vp".
const Prefix = "token"

// MaxBalancesOwners bounds the number of owners in one balances request.
const MaxBalancesOwners = 256

// OwnerBalance is one entry of a balances query.
type OwnerBalance struct {
	Owner  string       `json:"owner" cramberry:"1"`
	Amount types.Amount `json:"amount" cramberry:"2"`
}

// BalanceKey returns the key of owner's balance of token.
func BalanceKey(token, owner string) []byte {
	return []byte("token/" + token + "/balance/" + owner)
}

// DenominationKey returns the key of a token's decimal denomination.
func DenominationKey(token string) []byte {
	return []byte("token/" + token + "/denomination")
}

// TotalSupplyKey returns the key of a token's total supply.
func TotalSupplyKey(token string) []byte {
	return []byte("token/" + token + "/total_supply")
}

// Router returns the token subtree.
func Router() *router.Router {
	return router.New(
		router.Leaf("balance", balance, router.WithOptions(), router.Args("token", "owner")),
		router.Leaf("denomination", denomination, router.Args("token")),
		router.Leaf("total_supply", totalSupply, router.Args("token")),
		router.Leaf("balances", balances, router.WithOptions(), router.Args("token")),
	)
}

// balance serves historical reads and proofs. Absent balances are zero.
func balance(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	if err := router.RequireNoData(req); err != nil {
		return nil, err
	}
	if err := nonEmpty(args...); err != nil {
		return nil, err
	}
	height, err := router.ResolveHeight(ctx, req.Height)
	if err != nil {
		return nil, err
	}

	key := BalanceKey(args[0], args[1])
	amount, err := readAmount(ctx, key, height)
	if err != nil {
		return nil, err
	}
	if !req.Prove {
		return router.Respond(amount)
	}
	proof, err := ctx.Storage.GetProof(key, height)
	if err != nil {
		return nil, fmt.Errorf("proving %s: %w", key, err)
	}
	return router.RespondWithProof(amount, proof)
}

func denomination(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	if err := nonEmpty(args...); err != nil {
		return nil, err
	}
	raw, err := ctx.Storage.Get(DenominationKey(args[0]), req.Height)
	if err != nil {
		return nil, fmt.Errorf("reading denomination of %s: %w", args[0], err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no denomination for token %s", types.ErrKeyNotFound, args[0])
	}
	denom, err := router.Decode[uint8](raw)
	if err != nil {
		return nil, err
	}
	return router.Respond(denom)
}

func totalSupply(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	if err := nonEmpty(args...); err != nil {
		return nil, err
	}
	amount, err := readAmount(ctx, TotalSupplyKey(args[0]), req.Height)
	if err != nil {
		return nil, err
	}
	return router.Respond(amount)
}

// balances takes the owners as request data and serves only the latest
// height without proofs.
func balances(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	if err := router.RequireData(req); err != nil {
		return nil, err
	}
	if err := router.RequireNoProof(req); err != nil {
		return nil, err
	}
	if err := router.RequireLatestHeight(ctx, req); err != nil {
		return nil, err
	}
	if err := nonEmpty(args...); err != nil {
		return nil, err
	}
	// Every owner is read at the same committed height.
	height, err := router.ResolveHeight(ctx, req.Height)
	if err != nil {
		return nil, err
	}

	owners, err := router.Decode[[]string](req.Data)
	if err != nil {
		return nil, err
	}
	if len(owners) > MaxBalancesOwners {
		return nil, fmt.Errorf("%w: %d owners requested, at most %d allowed",
			types.ErrInvalidArgument, len(owners), MaxBalancesOwners)
	}

	out := make([]OwnerBalance, 0, len(owners))
	for _, owner := range owners {
		if err := nonEmpty(owner); err != nil {
			return nil, err
		}
		amount, err := readAmount(ctx, BalanceKey(args[0], owner), height)
		if err != nil {
			return nil, err
		}
		out = append(out, OwnerBalance{Owner: owner, Amount: amount})
	}
	return router.Respond(out)
}

func readAmount(ctx router.RequestCtx, key []byte, height types.Height) (types.Amount, error) {
	raw, err := ctx.Storage.Get(key, height)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	if raw == nil {
		return 0, nil
	}
	return router.Decode[types.Amount](raw)
}

func nonEmpty(args ...string) error {
	for _, arg := range args {
		if arg == "" {
			return fmt.Errorf("%w: empty path argument", types.ErrInvalidArgument)
		}
	}
	return nil
}
