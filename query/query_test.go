package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/client"
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/ledger"
	"github.com/blockberries/queryberry/query"
	"github.com/blockberries/queryberry/query/shell"
	"github.com/blockberries/queryberry/query/vp/pos"
	"github.com/blockberries/queryberry/query/vp/token"
	"github.com/blockberries/queryberry/router"
	qbtesting "github.com/blockberries/queryberry/testing"
	"github.com/blockberries/queryberry/types"
)

func newChain(t *testing.T) *qbtesting.TestChain {
	t.Helper()
	chain, err := qbtesting.NewTestChain(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = chain.Close() })
	return chain
}

func TestRoot(t *testing.T) {
	require.Same(t, query.Root(), query.Root())
	require.Equal(t, []string{shell.Prefix, "vp"}, query.Root().Prefixes())

	paths := query.Root().Paths()
	for _, want := range []string{
		"shell/epoch",
		"shell/value/{key...}",
		"shell/applied/{tx_hash}",
		"vp/pos/validator/stake/{addr}",
		"vp/pos/validator_set/consensus",
		"vp/token/balance/{token}/{owner}",
	} {
		assert.Contains(t, paths, want)
	}
}

func TestHandlePath_UnknownPath(t *testing.T) {
	chain := newChain(t)
	ctx := router.NewRequestCtx(chain.State, chain.EventLog)

	resp, err := query.HandlePath(ctx, &router.RequestQuery{Path: "shell/ended"})
	require.ErrorIs(t, err, types.ErrPathNotFound)
	require.Nil(t, resp)
}

func TestHandlePath_DatalessVPQuery(t *testing.T) {
	chain := newChain(t)
	ctx := router.NewRequestCtx(chain.State, chain.EventLog)

	resp, err := query.HandlePath(ctx, &router.RequestQuery{
		Path:   "vp/pos/total_stake",
		Data:   []byte{},
		Height: types.LatestHeight,
	})
	require.NoError(t, err)
	require.Empty(t, resp.Info)
	require.Nil(t, resp.Proof)

	total, err := router.Decode[types.Amount](resp.Data)
	require.NoError(t, err)
	require.Equal(t, types.Amount(1_000_000), total)
}

func TestHandlePath_HistoricalHeightOnLatestOnlyEndpoint(t *testing.T) {
	chain := newChain(t)
	require.NoError(t, chain.CommitN(9))
	require.Equal(t, types.Height(10), chain.Height())
	ctx := router.NewRequestCtx(chain.State, chain.EventLog)

	_, err := query.HandlePath(ctx, &router.RequestQuery{Path: "shell/epoch", Height: 5})
	require.ErrorIs(t, err, types.ErrInvalidHeight)
	require.Contains(t, err.Error(), "latest committed block height")

	_, err = query.HandlePath(ctx, &router.RequestQuery{Path: "shell/epoch", Height: 10})
	require.NoError(t, err)
}

func TestShellQuerier(t *testing.T) {
	cfg := qbtesting.DefaultTestChainConfig()
	cfg.EpochLength = 2
	chain, err := qbtesting.NewTestChain(cfg)
	require.NoError(t, err)
	defer chain.Close()

	q := query.Of(chain.Local).Shell
	ctx := context.Background()

	tx := types.Tx("transfer")
	_, err = chain.Commit([]types.Tx{tx})
	require.NoError(t, err)

	epoch, err := q.Epoch(ctx)
	require.NoError(t, err)
	require.Equal(t, types.Epoch(1), epoch)

	last, err := q.LastBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, types.Height(2), last.Height)

	native, err := q.NativeToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "nam", native)

	has, err := q.HasKey(ctx, string(shell.KeyNativeToken))
	require.NoError(t, err)
	require.True(t, has)

	applied, err := q.Applied(ctx, types.HashTx(tx))
	require.NoError(t, err)
	require.NotNil(t, applied)
	require.Equal(t, events.KindApplied, applied.Kind)
	require.Equal(t, types.Height(2), applied.Height)

	accepted, err := q.Accepted(ctx, types.HashTx(types.Tx("unknown")))
	require.NoError(t, err)
	require.Nil(t, accepted)

	_, err = client.Get[*events.Event](ctx, chain.Local, "shell/applied/zz")
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestShellQuerier_ValueAndPrefix(t *testing.T) {
	chain := newChain(t)
	q := query.Of(chain.Local).Shell
	ctx := context.Background()

	key := string(token.BalanceKey("nam", "validator-0"))
	resp, err := q.Value(ctx, key, types.LatestHeight, true)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Data)
	require.NotNil(t, resp.Proof)

	w, err := ledger.Set(token.BalanceKey("nam", "validator-0"), types.Amount(1))
	require.NoError(t, err)
	_, err = chain.Commit(nil, w)
	require.NoError(t, err)

	historical, err := q.Value(ctx, key, 1, false)
	require.NoError(t, err)
	require.Equal(t, resp.Data, historical.Data)
	require.Nil(t, historical.Proof)

	missing, err := q.Value(ctx, "no/such/key", types.LatestHeight, false)
	require.NoError(t, err)
	require.Empty(t, missing.Data)

	_, err = q.Value(ctx, key, 99, false)
	require.ErrorIs(t, err, types.ErrInvalidHeight)

	pairs, err := q.Prefix(ctx, "token/nam/", types.LatestHeight, true)
	require.NoError(t, err)
	require.Len(t, pairs.Data, 3)
	require.Equal(t, "token/nam/balance/validator-0", pairs.Data[0].Key)
	require.NotNil(t, pairs.Proof)
	require.Len(t, pairs.Proof.Ops, 3)
}

func TestPoSQuerier(t *testing.T) {
	chain := newChain(t)
	q := query.Of(chain.Local).PoS
	ctx := context.Background()

	ok, err := q.IsValidator(ctx, "validator-0")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.IsValidator(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, ok)

	stake, err := q.ValidatorStake(ctx, "validator-0")
	require.NoError(t, err)
	require.NotNil(t, stake)
	require.Equal(t, types.Amount(1_000_000), *stake)

	stake, err = q.ValidatorStake(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, stake)

	commission, err := q.ValidatorCommission(ctx, "validator-0")
	require.NoError(t, err)
	require.Equal(t, &pos.CommissionPair{Rate: 500, MaxChangePerEpoch: 100}, commission)

	set, err := q.ConsensusValidatorSet(ctx)
	require.NoError(t, err)
	require.Equal(t, []pos.WeightedValidator{{Address: "validator-0", BondedStake: 1_000_000}}, set)

	total, err := q.TotalStake(ctx)
	require.NoError(t, err)
	require.Equal(t, types.Amount(1_000_000), total)
}

func TestTokenQuerier(t *testing.T) {
	chain := newChain(t)
	q := query.Of(chain.Local).Token
	ctx := context.Background()

	resp, err := q.Balance(ctx, "nam", "validator-0", types.LatestHeight, true)
	require.NoError(t, err)
	require.Equal(t, types.Amount(1_000_000_000), resp.Data)
	require.NotNil(t, resp.Proof)

	resp, err = q.Balance(ctx, "nam", "nobody", types.LatestHeight, false)
	require.NoError(t, err)
	require.Zero(t, resp.Data)
	require.Nil(t, resp.Proof)

	denom, err := q.Denomination(ctx, "nam")
	require.NoError(t, err)
	require.Equal(t, uint8(6), denom)

	_, err = q.Denomination(ctx, "btc")
	require.ErrorIs(t, err, types.ErrKeyNotFound)

	supply, err := q.TotalSupply(ctx, "nam")
	require.NoError(t, err)
	require.Equal(t, types.Amount(1_000_000_000), supply)

	balances, err := q.Balances(ctx, "nam", []string{"validator-0", "nobody"})
	require.NoError(t, err)
	require.Equal(t, []token.OwnerBalance{
		{Owner: "validator-0", Amount: 1_000_000_000},
		{Owner: "nobody", Amount: 0},
	}, balances)
}

func TestTokenBalances_Guards(t *testing.T) {
	chain := newChain(t)
	ctx := context.Background()
	data := router.MustEncode([]string{"validator-0"})

	_, err := chain.Local.Request(ctx, "vp/token/balances/nam", nil, types.LatestHeight, false)
	require.ErrorIs(t, err, types.ErrMissingData)

	_, err = chain.Local.Request(ctx, "vp/token/balances/nam", data, types.LatestHeight, true)
	require.ErrorIs(t, err, types.ErrProofNotSupported)

	require.NoError(t, chain.CommitN(1))
	_, err = chain.Local.Request(ctx, "vp/token/balances/nam", data, 1, false)
	require.ErrorIs(t, err, types.ErrInvalidHeight)

	tooMany := make([]string, token.MaxBalancesOwners+1)
	for i := range tooMany {
		tooMany[i] = "owner"
	}
	_, err = chain.Local.Request(ctx, "vp/token/balances/nam", router.MustEncode(tooMany), types.LatestHeight, false)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSimpleRequest_Idempotent(t *testing.T) {
	chain := newChain(t)
	ctx := context.Background()

	first, err := client.SimpleRequest(ctx, chain.Local, "vp/pos/validator_set/consensus")
	require.NoError(t, err)
	for range 3 {
		again, err := client.SimpleRequest(ctx, chain.Local, "vp/pos/validator_set/consensus")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

// countingStorage counts every storage call, height lookups included.
type countingStorage struct {
	router.Storage
	calls int
}

func (s *countingStorage) LastBlockHeight() types.Height {
	s.calls++
	return s.Storage.LastBlockHeight()
}

func (s *countingStorage) LastBlock() (types.LastBlock, bool) {
	s.calls++
	return s.Storage.LastBlock()
}

func (s *countingStorage) Get(key []byte, height types.Height) ([]byte, error) {
	s.calls++
	return s.Storage.Get(key, height)
}

func (s *countingStorage) GetProof(key []byte, height types.Height) (*types.Proof, error) {
	s.calls++
	return s.Storage.GetProof(key, height)
}

func TestHandlePath_RejectedBeforeStorage(t *testing.T) {
	chain := newChain(t)
	require.NoError(t, chain.CommitN(4))
	data := router.MustEncode([]string{"validator-0"})

	tests := []struct {
		name string
		req  *router.RequestQuery
		want error
	}{
		{"historical proof", &router.RequestQuery{Path: "shell/epoch", Height: 2, Prove: true}, types.ErrProofNotSupported},
		{"historical data", &router.RequestQuery{Path: "shell/epoch", Height: 2, Data: []byte{1}}, types.ErrUnexpectedData},
		{"historical balances proof", &router.RequestQuery{Path: "vp/token/balances/nam", Data: data, Height: 2, Prove: true}, types.ErrProofNotSupported},
		{"empty value key", &router.RequestQuery{Path: "shell/value/", Prove: true}, types.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &countingStorage{Storage: chain.State}
			_, err := query.HandlePath(router.NewRequestCtx(storage, chain.EventLog), tt.req)
			require.ErrorIs(t, err, tt.want)
			require.Zero(t, storage.calls)
		})
	}
}

// committingStorage commits one block right after the first read returns.
type committingStorage struct {
	router.Storage
	commit func() error
	done   bool
	err    error
}

func (s *committingStorage) Get(key []byte, height types.Height) ([]byte, error) {
	value, err := s.Storage.Get(key, height)
	if !s.done {
		s.done = true
		s.err = s.commit()
	}
	return value, err
}

func TestTokenBalances_ReadOneHeight(t *testing.T) {
	chain := newChain(t)
	setBalances := func(alice, bob types.Amount) error {
		a, err := ledger.Set(token.BalanceKey("nam", "alice"), alice)
		if err != nil {
			return err
		}
		b, err := ledger.Set(token.BalanceKey("nam", "bob"), bob)
		if err != nil {
			return err
		}
		_, err = chain.Commit(nil, a, b)
		return err
	}
	require.NoError(t, setBalances(5, 7))
	before := chain.Height()

	storage := &committingStorage{Storage: chain.State, commit: func() error { return setBalances(50, 70) }}
	resp, err := query.HandlePath(router.NewRequestCtx(storage, chain.EventLog), &router.RequestQuery{
		Path: "vp/token/balances/nam",
		Data: router.MustEncode([]string{"alice", "bob"}),
	})
	require.NoError(t, err)
	require.NoError(t, storage.err)
	require.Equal(t, before+1, chain.Height(), "a block landed mid-request")

	got, err := router.Decode[[]token.OwnerBalance](resp.Data)
	require.NoError(t, err)
	require.Equal(t, []token.OwnerBalance{
		{Owner: "alice", Amount: 5},
		{Owner: "bob", Amount: 7},
	}, got)
}
