package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/blockstore"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/mempool"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/query/vp/pos"
	"github.com/blockberries/queryberry/query/vp/token"
	"github.com/blockberries/queryberry/router"
	"github.com/blockberries/queryberry/statestore"
	"github.com/blockberries/queryberry/types"
)

var genesisTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type testLedger struct {
	*Ledger
	state    *statestore.IAVLStore
	blocks   *blockstore.MemoryBlockStore
	eventLog *events.Log
}

func newTestLedger(t *testing.T, opts ...Option) *testLedger {
	t.Helper()
	tl := &testLedger{
		state:    statestore.NewMemoryIAVLStore(0),
		blocks:   blockstore.NewMemoryBlockStore(),
		eventLog: events.NewLog(100),
	}
	t.Cleanup(func() {
		_ = tl.blocks.Close()
		_ = tl.state.Close()
	})
	tl.Ledger = New("test-chain", tl.state, tl.blocks, tl.eventLog, opts...)
	return tl
}

func testGenesis() *Genesis {
	g := DefaultGenesis("test-chain")
	g.GenesisTime = genesisTime
	return g
}

func decodeAt[T any](t *testing.T, s *statestore.IAVLStore, key []byte, height types.Height) T {
	t.Helper()
	raw, err := s.Get(key, height)
	require.NoError(t, err)
	require.NotNil(t, raw, "key %s", key)
	v, err := router.Decode[T](raw)
	require.NoError(t, err)
	return v
}

func TestInitGenesis(t *testing.T) {
	l := newTestLedger(t)

	block, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)
	require.Equal(t, types.Height(1), block.Header.Height)
	require.Equal(t, types.Height(1), l.Height())
	require.Equal(t, types.Height(1), l.state.LastBlockHeight())
	require.Empty(t, block.Header.LastBlockHash)
	require.Equal(t, types.TimeToTimestamp(genesisTime), block.Header.Time)

	require.Equal(t, "nam", decodeAt[string](t, l.state, shell.KeyNativeToken, 1))
	require.Equal(t, types.Epoch(0), decodeAt[types.Epoch](t, l.state, shell.KeyEpoch, 1))
	require.Equal(t, types.Amount(1_000_000), decodeAt[types.Amount](t, l.state, pos.StakeKey("validator-0"), 1))
	require.Equal(t, types.Amount(1_000_000), decodeAt[types.Amount](t, l.state, pos.KeyTotalStake, 1))
	require.Equal(t, types.Amount(1_000_000_000), decodeAt[types.Amount](t, l.state, token.TotalSupplyKey("nam"), 1))
	require.Equal(t, uint8(6), decodeAt[uint8](t, l.state, token.DenominationKey("nam"), 1))

	set := decodeAt[[]pos.WeightedValidator](t, l.state, pos.KeyConsensusSet, 1)
	require.Equal(t, []pos.WeightedValidator{{Address: "validator-0", BondedStake: 1_000_000}}, set)

	_, ok := l.eventLog.Latest(events.QueryEventKind{Kind: events.KindNewBlock})
	require.True(t, ok)
}

func TestInitGenesis_OrdersConsensusSet(t *testing.T) {
	l := newTestLedger(t)
	g := testGenesis()
	g.Validators = []GenesisValidator{
		{Address: "b", Stake: 10},
		{Address: "c", Stake: 30},
		{Address: "a", Stake: 10},
	}

	_, err := l.InitGenesis(g)
	require.NoError(t, err)

	set := decodeAt[[]pos.WeightedValidator](t, l.state, pos.KeyConsensusSet, 1)
	require.Equal(t, []pos.WeightedValidator{
		{Address: "c", BondedStake: 30},
		{Address: "a", BondedStake: 10},
		{Address: "b", BondedStake: 10},
	}, set)
	require.Equal(t, types.Amount(50), decodeAt[types.Amount](t, l.state, pos.KeyTotalStake, 1))
}

func TestInitGenesis_Errors(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		l := newTestLedger(t)
		_, err := l.InitGenesis(testGenesis())
		require.NoError(t, err)

		_, err = l.InitGenesis(testGenesis())
		require.ErrorIs(t, err, ErrInvalidGenesis)
		require.Equal(t, types.Height(1), l.Height())
	})

	t.Run("chain mismatch", func(t *testing.T) {
		l := newTestLedger(t)
		_, err := l.InitGenesis(DefaultGenesis("other-chain"))
		require.ErrorIs(t, err, ErrInvalidGenesis)
		require.Zero(t, l.Height())
	})

	t.Run("stake overflow", func(t *testing.T) {
		l := newTestLedger(t)
		g := testGenesis()
		g.Validators = []GenesisValidator{
			{Address: "a", Stake: ^types.Amount(0)},
			{Address: "b", Stake: 1},
		}
		_, err := l.InitGenesis(g)
		require.ErrorIs(t, err, ErrInvalidGenesis)
	})
}

func TestCommitBlock_ChainsHeaders(t *testing.T) {
	l := newTestLedger(t, WithProposer([]byte("proposer")))
	genesis, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)

	w, err := Set(token.BalanceKey("nam", "alice"), types.Amount(5))
	require.NoError(t, err)
	txs := []types.Tx{types.Tx("a"), types.Tx("b")}
	block, err := l.CommitBlock(types.TimeToTimestamp(genesisTime.Add(time.Second)), txs, w)
	require.NoError(t, err)

	require.Equal(t, types.Height(2), block.Header.Height)
	require.Equal(t, genesis.Hash(), block.Header.LastBlockHash)
	require.Equal(t, []byte("proposer"), block.Header.ProposerAddress)
	require.NotEmpty(t, block.Header.DataHash)

	root, err := l.state.RootHash(1)
	require.NoError(t, err)
	require.Equal(t, types.Hash(root), block.Header.AppHash, "app hash is the state after the previous block")

	require.Equal(t, types.Amount(5), decodeAt[types.Amount](t, l.state, token.BalanceKey("nam", "alice"), 2))
	raw, err := l.state.Get(token.BalanceKey("nam", "alice"), 1)
	require.NoError(t, err)
	require.Nil(t, raw, "history is preserved")

	results, err := l.blocks.LoadBlockResults(2)
	require.NoError(t, err)
	require.Len(t, results.TxResults, 2)

	for _, tx := range txs {
		hash := types.HashTx(tx).String()
		ev, ok := l.eventLog.Latest(events.KindWithAttribute(events.KindApplied, events.AttributeKeyHash, hash))
		require.True(t, ok)
		code, _ := ev.Attr(events.AttributeKeyCode)
		require.Equal(t, "0", code)
		_, ok = l.eventLog.Latest(events.KindWithAttribute(events.KindAccepted, events.AttributeKeyHash, hash))
		require.True(t, ok)
	}
}

func TestCommitBlock_Delete(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)

	_, err = l.CommitBlock(types.TimeToTimestamp(genesisTime), nil, Write{Key: shell.KeyNativeToken, Delete: true})
	require.NoError(t, err)

	has, err := l.state.Has(shell.KeyNativeToken, 2)
	require.NoError(t, err)
	require.False(t, has)
}

func TestCommitBlock_StoresDiverged(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)

	// Commit state without a block.
	_, err = l.state.Commit(types.Hash("x"), types.TimeToTimestamp(genesisTime))
	require.NoError(t, err)

	_, err = l.CommitBlock(types.TimeToTimestamp(genesisTime), nil)
	require.ErrorIs(t, err, ErrStoresDiverged)
}

func TestProduceBlock_ReapsMempool(t *testing.T) {
	mp := mempool.NewSimpleMempool(100, 1<<20, 1<<16)
	mp.SetTxValidator(mempool.AcceptAllTxValidator)
	l := newTestLedger(t, WithMempool(mp))
	_, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)

	require.NoError(t, mp.AddTx(types.Tx("one")))
	require.NoError(t, mp.AddTx(types.Tx("two")))

	block, err := l.ProduceBlock(genesisTime.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, block.Txs, 2)
	require.Zero(t, mp.Size())

	empty, err := l.ProduceBlock(genesisTime.Add(2 * time.Second))
	require.NoError(t, err)
	require.Empty(t, empty.Txs)
	require.Empty(t, empty.Header.DataHash)
}

func TestProduceBlock_RespectsMaxBlockBytes(t *testing.T) {
	mp := mempool.NewSimpleMempool(100, 1<<20, 1<<16)
	mp.SetTxValidator(mempool.AcceptAllTxValidator)
	l := newTestLedger(t, WithMempool(mp))
	_, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)
	l.SetConsensusParams(types.ConsensusParams{MaxBlockBytes: 4})

	require.NoError(t, mp.AddTx(types.Tx("abc")))
	require.NoError(t, mp.AddTx(types.Tx("def")))

	block, err := l.ProduceBlock(genesisTime.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, block.Txs, 1)
	require.Equal(t, 1, mp.Size())
}

func TestEpochAdvances(t *testing.T) {
	l := newTestLedger(t, WithEpochLength(2))
	_, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)

	for range 4 {
		_, err := l.CommitBlock(types.TimeToTimestamp(genesisTime), nil)
		require.NoError(t, err)
	}

	require.Equal(t, types.Epoch(0), decodeAt[types.Epoch](t, l.state, shell.KeyEpoch, 1))
	require.Equal(t, types.Epoch(1), decodeAt[types.Epoch](t, l.state, shell.KeyEpoch, 2))
	require.Equal(t, types.Epoch(1), decodeAt[types.Epoch](t, l.state, shell.KeyEpoch, 3))
	require.Equal(t, types.Epoch(2), decodeAt[types.Epoch](t, l.state, shell.KeyEpoch, 4))
	require.Equal(t, types.Epoch(2), decodeAt[types.Epoch](t, l.state, shell.KeyEpoch, 5))
}

func TestPrune(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.InitGenesis(testGenesis())
	require.NoError(t, err)
	for range 4 {
		_, err := l.CommitBlock(types.TimeToTimestamp(genesisTime), nil)
		require.NoError(t, err)
	}

	require.NoError(t, l.Prune(2))

	_, err = l.state.Get(shell.KeyEpoch, 1)
	require.ErrorIs(t, err, types.ErrVersionNotFound)
	_, err = l.state.Get(shell.KeyEpoch, 5)
	require.NoError(t, err)
}

func TestGenesisValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Genesis)
	}{
		{"missing chain id", func(g *Genesis) { g.ChainID = "" }},
		{"empty validator address", func(g *Genesis) { g.Validators[0].Address = "" }},
		{"duplicate validator", func(g *Genesis) { g.Validators = append(g.Validators, g.Validators[0]) }},
		{"commission above denominator", func(g *Genesis) { g.Validators[0].Commission.Rate = pos.CommissionRateDenominator + 1 }},
		{"empty token address", func(g *Genesis) { g.Tokens[0].Address = "" }},
		{"duplicate token", func(g *Genesis) { g.Tokens = append(g.Tokens, g.Tokens[0]) }},
		{"native token without ledger", func(g *Genesis) { g.NativeToken = "btc" }},
	}

	require.NoError(t, testGenesis().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGenesis()
			tt.modify(g)
			require.ErrorIs(t, g.Validate(), ErrInvalidGenesis)
		})
	}
}

func TestWriteLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := testGenesis()

	require.NoError(t, WriteGenesis(path, g))
	loaded, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, g, loaded)

	_, err = LoadGenesis(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
