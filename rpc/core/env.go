// Package core implements rpc.Service on top of the node's stores.
package core

import (
	"errors"
	"fmt"

	"github.com/blockberries/queryberry/blockstore"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/mempool"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

// Paging limits for search methods.
const (
	DefaultPerPage = 30
	MaxPerPage     = 100

	// MaxBlockchainHeaders bounds the number of headers returned by blockchain.
	MaxBlockchainHeaders = 20
)

// Environment serves every RPC method from the node's block store, state
// store and event log. Path queries are dispatched through the query root.
type Environment struct {
	blocks   blockstore.BlockStore
	state    router.Storage
	eventLog events.Reader
	root     *router.Router

	mempool             mempool.Mempool
	nodeInfo            rpc.NodeInfo
	params              types.ConsensusParams
	appVersion          uint64
	listeners           []string
	readPastHeightLimit uint64

	logger  *logging.Logger
	metrics metrics.Metrics
}

// Option configures an Environment.
type Option func(*Environment)

// WithMempool enables broadcast_tx_sync by admitting transactions into mp.
func WithMempool(mp mempool.Mempool) Option {
	return func(e *Environment) {
		e.mempool = mp
	}
}

// WithNodeInfo sets the identity reported by status and net_info.
func WithNodeInfo(info rpc.NodeInfo) Option {
	return func(e *Environment) {
		e.nodeInfo = info
	}
}

// WithConsensusParams sets the consensus parameters reported by consensus_params.
func WithConsensusParams(params types.ConsensusParams) Option {
	return func(e *Environment) {
		e.params = params
	}
}

// WithAppVersion sets the application version reported by abci_info.
func WithAppVersion(v uint64) Option {
	return func(e *Environment) {
		e.appVersion = v
	}
}

// WithListeners sets the listen addresses reported by net_info.
func WithListeners(addrs ...string) Option {
	return func(e *Environment) {
		e.listeners = addrs
	}
}

// WithReadPastHeightLimit bounds how far behind the last committed height
// historical path queries may read.
func WithReadPastHeightLimit(limit uint64) Option {
	return func(e *Environment) {
		e.readPastHeightLimit = limit
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Environment) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Environment) {
		e.metrics = m
	}
}

// NewEnvironment creates an Environment over the given collaborators.
// It panics if any of them is nil.
func NewEnvironment(blocks blockstore.BlockStore, state router.Storage, eventLog events.Reader, root *router.Router, opts ...Option) *Environment {
	switch {
	case blocks == nil:
		panic("core: nil block store")
	case state == nil:
		panic("core: nil state store")
	case eventLog == nil:
		panic("core: nil event log")
	case root == nil:
		panic("core: nil query root")
	}

	e := &Environment{
		blocks:   blocks,
		state:    state,
		eventLog: eventLog,
		root:     root,
		logger:   logging.NewNopLogger(),
		metrics:  metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("rpc-core")
	return e
}

// requestCtx builds the per-request context for a path query.
func (e *Environment) requestCtx() router.RequestCtx {
	ctx := router.NewRequestCtx(e.state, e.eventLog)
	ctx.ReadPastHeightLimit = e.readPastHeightLimit
	return ctx
}

// resolveHeight maps an optional request height onto a stored block height.
// A nil or zero height selects the latest block.
func (e *Environment) resolveHeight(h *int64) (types.Height, error) {
	latest := e.blocks.Height()
	if h == nil || *h == 0 {
		if latest == 0 {
			return 0, rpc.ErrBlockNotFound.WithData("no blocks stored yet")
		}
		return latest, nil
	}
	if *h < 0 {
		return 0, rpc.ErrInvalidHeight.WithData("height must be greater than 0")
	}
	height := types.Height(*h)
	if height > latest {
		return 0, rpc.ErrInvalidHeight.WithDataf(
			"height %d must be less than or equal to the current blockchain height %d", height, latest)
	}
	if base := e.blocks.Base(); height < base {
		return 0, rpc.ErrInvalidHeight.WithDataf(
			"height %d is not available, lowest height is %d", height, base)
	}
	return height, nil
}

// loadBlock loads a block, mapping a missing block to an RPC error.
func (e *Environment) loadBlock(height types.Height) (*types.Block, error) {
	block, err := e.blocks.LoadBlock(height)
	if err != nil {
		return nil, blockError(height, err)
	}
	return block, nil
}

func blockError(height types.Height, err error) error {
	if errors.Is(err, types.ErrBlockNotFound) {
		return rpc.ErrBlockNotFound.WithDataf("height %d", height)
	}
	return fmt.Errorf("loading block %d: %w", height, err)
}

var _ rpc.Service = (*Environment)(nil)
