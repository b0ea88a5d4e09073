// Package shell serves queries over core ledger state: the current epoch,
// the last committed block, raw storage values and the status of
// transactions recorded in the event log.
package shell

import (
	"fmt"
	"strings"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/types"
)

// Prefix is the path segment the shell subtree is mounted under.
const Prefix = "shell"

// Storage keys written by the ledger and read by the shell.
var (
	KeyEpoch       = []byte("ledger/epoch")
	KeyNativeToken = []byte("ledger/native_token")
)

// PrefixValue is one key-value pair returned by a prefix query.
type PrefixValue struct {
	Key   string `json:"key" cramberry:"1"`
	Value []byte `json:"value" cramberry:"2"`
}

// Router returns the shell subtree.
func Router() *router.Router {
	return router.New(
		router.Leaf("epoch", epoch),
		router.Leaf("last_block", lastBlock),
		router.Leaf("native_token", nativeToken),
		router.Leaf("value", value, router.WithOptions(), router.Variadic("key")),
		router.Leaf("prefix", prefix, router.WithOptions(), router.Variadic("key")),
		router.Leaf("has_key", hasKey, router.Variadic("key")),
		router.Leaf("accepted", txEvent(events.KindAccepted), router.Args("tx_hash")),
		router.Leaf("applied", txEvent(events.KindApplied), router.Args("tx_hash")),
	)
}

func epoch(ctx router.RequestCtx, req *router.RequestQuery, _ []string) (*router.EncodedResponseQuery, error) {
	raw, err := ctx.Storage.Get(KeyEpoch, req.Height)
	if err != nil {
		return nil, fmt.Errorf("reading epoch: %w", err)
	}
	var e types.Epoch
	if raw != nil {
		if e, err = router.Decode[types.Epoch](raw); err != nil {
			return nil, err
		}
	}
	return router.Respond(e)
}

func lastBlock(ctx router.RequestCtx, _ *router.RequestQuery, _ []string) (*router.EncodedResponseQuery, error) {
	lb, ok := ctx.Storage.LastBlock()
	if !ok {
		return router.Respond[*types.LastBlock](nil)
	}
	return router.Respond(&lb)
}

func nativeToken(ctx router.RequestCtx, req *router.RequestQuery, _ []string) (*router.EncodedResponseQuery, error) {
	raw, err := ctx.Storage.Get(KeyNativeToken, req.Height)
	if err != nil {
		return nil, fmt.Errorf("reading native token: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: native token is not set", types.ErrKeyNotFound)
	}
	addr, err := router.Decode[string](raw)
	if err != nil {
		return nil, err
	}
	return router.Respond(addr)
}

// value returns the raw bytes stored at a key, empty if absent.
func value(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	if err := router.RequireNoData(req); err != nil {
		return nil, err
	}
	height, err := router.ResolveHeight(ctx, req.Height)
	if err != nil {
		return nil, err
	}
	key := storageKey(args)

	data, err := ctx.Storage.Get(key, height)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	resp := &router.EncodedResponseQuery{Data: data}
	if req.Prove {
		if resp.Proof, err = ctx.Storage.GetProof(key, height); err != nil {
			return nil, fmt.Errorf("proving %q: %w", key, err)
		}
	}
	return resp, nil
}

// prefix returns every key-value pair under a key prefix. With a proof
// requested, the proof holds one op per returned key.
func prefix(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	if err := router.RequireNoData(req); err != nil {
		return nil, err
	}
	height, err := router.ResolveHeight(ctx, req.Height)
	if err != nil {
		return nil, err
	}
	key := storageKey(args)

	var pairs []PrefixValue
	err = ctx.Storage.IteratePrefix(key, height, func(k, v []byte) bool {
		pairs = append(pairs, PrefixValue{Key: string(k), Value: v})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterating %q: %w", key, err)
	}

	if !req.Prove {
		return router.Respond(pairs)
	}
	proof := &types.Proof{}
	for _, pair := range pairs {
		p, err := ctx.Storage.GetProof([]byte(pair.Key), height)
		if err != nil {
			return nil, fmt.Errorf("proving %q: %w", pair.Key, err)
		}
		proof.Ops = append(proof.Ops, p.Ops...)
	}
	return router.RespondWithProof(pairs, proof)
}

func hasKey(ctx router.RequestCtx, req *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
	key := storageKey(args)
	has, err := ctx.Storage.Has(key, req.Height)
	if err != nil {
		return nil, fmt.Errorf("checking %q: %w", key, err)
	}
	return router.Respond(has)
}

// txEvent returns a handler looking up the most recent event of kind
// recorded for a transaction hash. Unknown hashes yield no event.
func txEvent(kind string) router.Handler {
	return func(ctx router.RequestCtx, _ *router.RequestQuery, args []string) (*router.EncodedResponseQuery, error) {
		hash, err := types.HashFromHex(args[0])
		if err != nil || hash.IsEmpty() {
			return nil, fmt.Errorf("%w: transaction hash %q", types.ErrInvalidArgument, args[0])
		}
		if ctx.EventLog == nil {
			return router.Respond[*events.Event](nil)
		}
		ev, ok := ctx.EventLog.Latest(events.KindWithAttribute(kind, events.AttributeKeyHash, hash.String()))
		if !ok {
			return router.Respond[*events.Event](nil)
		}
		return router.Respond(&ev)
	}
}

func storageKey(args []string) []byte {
	return []byte(strings.Join(args, "/"))
}
