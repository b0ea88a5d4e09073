// Package ledger writes the state the query layer reads: it commits genesis
// and blocks to the state store and block store, and records the events
// each commit emits.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/blockberries/queryberry/blockstore"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/mempool"
	"github.com/blockberries/queryberry/metrics"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/query/vp/pos"
	"github.com/blockberries/queryberry/query/vp/token"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/statestore"
	"github.com/blockberries/queryberry/types"
)

// DefaultMaxBlockBytes bounds the transactions reaped into a produced block
// when the consensus parameters set no limit.
const DefaultMaxBlockBytes = 1024 * 1024

// ErrStoresDiverged is returned when the state store and block store do not
// agree on the next height.
var ErrStoresDiverged = errors.New("state store and block store heights diverged")

// Write is one state change applied by a block.
type Write struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Set returns a write storing the encoded form of v at key.
func Set[T any](key []byte, v T) (Write, error) {
	value, err := router.Encode(v)
	if err != nil {
		return Write{}, err
	}
	return Write{Key: key, Value: value}, nil
}

// Ledger commits blocks. It is safe for concurrent use; commits are
// serialized.
type Ledger struct {
	mu sync.Mutex

	chainID  string
	state    statestore.StateStore
	blocks   blockstore.BlockStore
	eventLog *events.Log
	mempool  mempool.Mempool
	params   types.ConsensusParams

	epochLength uint64
	proposer    []byte

	logger  *logging.Logger
	metrics metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMempool makes produced blocks include pending transactions and
// removes committed transactions from mp.
func WithMempool(mp mempool.Mempool) Option {
	return func(l *Ledger) {
		l.mempool = mp
	}
}

// WithEpochLength advances the epoch every n blocks. Zero keeps the epoch fixed.
func WithEpochLength(n uint64) Option {
	return func(l *Ledger) {
		l.epochLength = n
	}
}

// WithProposer sets the proposer address recorded in block headers.
func WithProposer(addr []byte) Option {
	return func(l *Ledger) {
		l.proposer = addr
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New creates a ledger over the given stores.
func New(chainID string, state statestore.StateStore, blocks blockstore.BlockStore, eventLog *events.Log, opts ...Option) *Ledger {
	l := &Ledger{
		chainID:  chainID,
		state:    state,
		blocks:   blocks,
		eventLog: eventLog,
		logger:   logging.NewNopLogger(),
		metrics:  metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("ledger")
	return l
}

// Height returns the last committed height.
func (l *Ledger) Height() types.Height {
	return l.blocks.Height()
}

// SetConsensusParams sets the parameters used when producing blocks.
func (l *Ledger) SetConsensusParams(params types.ConsensusParams) {
	l.mu.Lock()
	l.params = params
	l.mu.Unlock()
}

// InitGenesis writes the genesis state and commits it as the first block.
// It fails if anything has been committed already.
func (l *Ledger) InitGenesis(g *Genesis) (*types.Block, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.ChainID != l.chainID {
		return nil, fmt.Errorf("%w: genesis chain %s does not match %s", ErrInvalidGenesis, g.ChainID, l.chainID)
	}
	if l.blocks.Height() > 0 || l.state.LastBlockHeight() > 0 {
		return nil, fmt.Errorf("%w: ledger already initialized at height %d", ErrInvalidGenesis, l.blocks.Height())
	}

	writes, err := genesisWrites(g)
	if err != nil {
		return nil, err
	}
	l.SetConsensusParams(g.ConsensusParams)
	return l.CommitBlock(types.TimeToTimestamp(g.GenesisTime), nil, writes...)
}

func genesisWrites(g *Genesis) ([]Write, error) {
	var writes []Write
	add := func(w Write, err error) error {
		if err != nil {
			return err
		}
		writes = append(writes, w)
		return nil
	}

	if err := add(Set(shell.KeyEpoch, types.Epoch(0))); err != nil {
		return nil, err
	}
	if g.NativeToken != "" {
		if err := add(Set(shell.KeyNativeToken, g.NativeToken)); err != nil {
			return nil, err
		}
	}

	var total types.Amount
	set := make([]pos.WeightedValidator, 0, len(g.Validators))
	for _, v := range g.Validators {
		if err := add(Set(pos.StakeKey(v.Address), v.Stake)); err != nil {
			return nil, err
		}
		if err := add(Set(pos.CommissionKey(v.Address), v.Commission)); err != nil {
			return nil, err
		}
		var ok bool
		if total, ok = total.Add(v.Stake); !ok {
			return nil, fmt.Errorf("%w: total stake overflows", ErrInvalidGenesis)
		}
		set = append(set, pos.WeightedValidator{Address: v.Address, BondedStake: v.Stake})
	}
	slices.SortFunc(set, func(a, b pos.WeightedValidator) int {
		if a.BondedStake != b.BondedStake {
			if a.BondedStake > b.BondedStake {
				return -1
			}
			return 1
		}
		return bytes.Compare([]byte(a.Address), []byte(b.Address))
	})
	if err := add(Set(pos.KeyConsensusSet, set)); err != nil {
		return nil, err
	}
	if err := add(Set(pos.KeyTotalStake, total)); err != nil {
		return nil, err
	}

	for _, t := range g.Tokens {
		if err := add(Set(token.DenominationKey(t.Address), t.Denomination)); err != nil {
			return nil, err
		}
		var supply types.Amount
		for _, owner := range slices.Sorted(maps.Keys(t.Balances)) {
			amount := t.Balances[owner]
			if err := add(Set(token.BalanceKey(t.Address, owner), amount)); err != nil {
				return nil, err
			}
			var ok bool
			if supply, ok = supply.Add(amount); !ok {
				return nil, fmt.Errorf("%w: supply of %s overflows", ErrInvalidGenesis, t.Address)
			}
		}
		if err := add(Set(token.TotalSupplyKey(t.Address), supply)); err != nil {
			return nil, err
		}
	}
	return writes, nil
}

// CommitBlock applies writes, commits the next block holding txs and
// records its events. Every transaction is recorded as applied with code 0.
func (l *Ledger) CommitBlock(at types.Timestamp, txs []types.Tx, writes ...Write) (*types.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	height := l.blocks.Height() + 1
	if stateHeight := l.state.LastBlockHeight(); stateHeight+1 != height {
		return nil, fmt.Errorf("%w: state at %d, blocks at %d", ErrStoresDiverged, stateHeight, height-1)
	}

	header := types.BlockHeader{
		ChainID:         l.chainID,
		Height:          height,
		Time:            at,
		DataHash:        dataHash(txs),
		ProposerAddress: l.proposer,
	}
	if height > 1 {
		prev, err := l.blocks.LoadBlock(height - 1)
		if err != nil {
			return nil, fmt.Errorf("loading previous block: %w", err)
		}
		header.LastBlockHash = prev.Hash()
		appHash, err := l.state.RootHash(types.LatestHeight)
		if err != nil {
			return nil, fmt.Errorf("reading app hash: %w", err)
		}
		header.AppHash = appHash
	}

	for _, w := range writes {
		var err error
		if w.Delete {
			err = l.state.Delete(w.Key)
		} else {
			err = l.state.Set(w.Key, w.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("applying write to %s: %w", w.Key, err)
		}
	}
	if err := l.advanceEpoch(height); err != nil {
		return nil, err
	}

	block := &types.Block{Header: header, Txs: txs}
	hash := block.Hash()
	if _, err := l.state.Commit(hash, at); err != nil {
		return nil, fmt.Errorf("committing state: %w", err)
	}
	root, err := l.state.RootHash(height)
	if err != nil {
		return nil, fmt.Errorf("reading committed root: %w", err)
	}

	results := &types.BlockResults{
		Height:    height,
		TxResults: make([]types.TxResult, len(txs)),
		AppHash:   root,
	}
	commit := &types.Commit{Height: height, BlockHash: hash}
	if err := l.blocks.SaveBlock(block, results, commit); err != nil {
		return nil, fmt.Errorf("saving block: %w", err)
	}

	l.recordEvents(block, hash)
	if l.mempool != nil && len(txs) > 0 {
		hashes := make([]types.Hash, len(txs))
		for i, tx := range txs {
			hashes[i] = types.HashTx(tx)
		}
		l.mempool.RemoveTxs(hashes)
		l.metrics.SetMempoolSize(l.mempool.Size())
	}

	l.metrics.SetBlockHeight(int64(height))
	l.metrics.SetStateStoreVersion(int64(height))
	l.logger.Info("committed block",
		logging.Height(uint64(height)),
		logging.Hash(hash),
		logging.Count(len(txs)))
	return block, nil
}

// ProduceBlock commits a block holding the transactions pending in the
// mempool, or an empty block when there is none.
func (l *Ledger) ProduceBlock(now time.Time) (*types.Block, error) {
	var txs []types.Tx
	if l.mempool != nil {
		l.mu.Lock()
		maxBytes := l.params.MaxBlockBytes
		l.mu.Unlock()
		if maxBytes <= 0 {
			maxBytes = DefaultMaxBlockBytes
		}
		txs = l.mempool.ReapTxs(maxBytes)
	}
	return l.CommitBlock(types.TimeToTimestamp(now), txs)
}

// Prune drops state versions older than the most recent keepRecent.
func (l *Ledger) Prune(keepRecent int64) error {
	pruner, ok := l.state.(interface{ Prune(int64) error })
	if !ok {
		return nil
	}
	return pruner.Prune(keepRecent)
}

// advanceEpoch bumps the stored epoch on epoch boundaries. The caller must hold l.mu.
func (l *Ledger) advanceEpoch(height types.Height) error {
	if l.epochLength == 0 || uint64(height)%l.epochLength != 0 {
		return nil
	}
	raw, err := l.state.Get(shell.KeyEpoch, types.LatestHeight)
	if err != nil {
		return fmt.Errorf("reading epoch: %w", err)
	}
	var epoch types.Epoch
	if raw != nil {
		if epoch, err = router.Decode[types.Epoch](raw); err != nil {
			return err
		}
	}
	w, err := Set(shell.KeyEpoch, epoch+1)
	if err != nil {
		return err
	}
	return l.state.Set(w.Key, w.Value)
}

func (l *Ledger) recordEvents(block *types.Block, hash types.Hash) {
	height := block.Header.Height
	evs := make([]events.Event, 0, 2*len(block.Txs)+1)
	for _, tx := range block.Txs {
		txHash := types.HashTx(tx).String()
		evs = append(evs,
			events.New(events.KindAccepted, height,
				events.AttributeKeyHash, txHash,
				events.AttributeKeyHeight, height.String()),
			events.New(events.KindApplied, height,
				events.AttributeKeyHash, txHash,
				events.AttributeKeyHeight, height.String(),
				events.AttributeKeyCode, strconv.FormatUint(uint64(types.CodeOK), 10)),
		)
	}
	evs = append(evs, events.New(events.KindNewBlock, height,
		events.AttributeKeyHash, hash.String(),
		events.AttributeKeyHeight, height.String()))
	l.eventLog.Append(evs...)
}

func dataHash(txs []types.Tx) types.Hash {
	if len(txs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.Write(types.HashTx(tx))
	}
	return types.HashBytes(buf.Bytes())
}
