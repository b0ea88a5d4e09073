package mempool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/types"
)

func TestDefaultTxValidator(t *testing.T) {
	err := DefaultTxValidator(types.Tx("tx"))
	require.ErrorIs(t, err, types.ErrNoTxValidator)
}

func TestAcceptAllTxValidator(t *testing.T) {
	require.NoError(t, AcceptAllTxValidator(types.Tx("tx")))
	require.ErrorIs(t, AcceptAllTxValidator(types.Tx{}), types.ErrInvalidTx)
}

func TestSimpleMempool_AddTx(t *testing.T) {
	mp := NewSimpleMempool(100, 1024*1024, 64)
	mp.SetTxValidator(AcceptAllTxValidator)

	t.Run("adds transaction", func(t *testing.T) {
		tx := types.Tx("transaction 1")
		require.NoError(t, mp.AddTx(tx))
		require.Equal(t, 1, mp.Size())
		require.Equal(t, int64(len(tx)), mp.SizeBytes())
		require.True(t, mp.HasTx(types.HashTx(tx)))
	})

	t.Run("rejects duplicate", func(t *testing.T) {
		require.ErrorIs(t, mp.AddTx(types.Tx("transaction 1")), types.ErrTxAlreadyExists)
		require.Equal(t, 1, mp.Size())
	})

	t.Run("rejects nil transaction", func(t *testing.T) {
		require.ErrorIs(t, mp.AddTx(nil), types.ErrInvalidTx)
	})

	t.Run("rejects oversized transaction", func(t *testing.T) {
		require.ErrorIs(t, mp.AddTx(make(types.Tx, 65)), types.ErrTxTooLarge)
	})
}

func TestSimpleMempool_FailsClosedWithoutValidator(t *testing.T) {
	mp := NewSimpleMempool(0, 0, 0)
	require.ErrorIs(t, mp.AddTx(types.Tx("tx")), types.ErrNoTxValidator)
	require.Zero(t, mp.Size())
}

func TestSimpleMempool_Capacity(t *testing.T) {
	t.Run("max txs", func(t *testing.T) {
		mp := NewSimpleMempool(2, 0, 0)
		mp.SetTxValidator(AcceptAllTxValidator)
		require.NoError(t, mp.AddTx(types.Tx("a")))
		require.NoError(t, mp.AddTx(types.Tx("b")))
		require.ErrorIs(t, mp.AddTx(types.Tx("c")), types.ErrMempoolFull)
	})

	t.Run("max bytes", func(t *testing.T) {
		mp := NewSimpleMempool(0, 5, 0)
		mp.SetTxValidator(AcceptAllTxValidator)
		require.NoError(t, mp.AddTx(types.Tx("abc")))
		require.ErrorIs(t, mp.AddTx(types.Tx("def")), types.ErrMempoolFull)
	})
}

func TestSimpleMempool_ReapAndRemove(t *testing.T) {
	mp := NewSimpleMempool(0, 0, 0)
	mp.SetTxValidator(AcceptAllTxValidator)

	var hashes []types.Hash
	for i := 0; i < 4; i++ {
		tx := types.Tx(fmt.Sprintf("tx-%d", i))
		require.NoError(t, mp.AddTx(tx))
		hashes = append(hashes, types.HashTx(tx))
	}

	reaped := mp.ReapTxs(8)
	require.Len(t, reaped, 2)
	assert.Equal(t, types.Tx("tx-0"), reaped[0])
	assert.Equal(t, types.Tx("tx-1"), reaped[1])

	mp.RemoveTxs([]types.Hash{hashes[0], hashes[2], types.HashBytes([]byte("missing"))})
	assert.Equal(t, 2, mp.Size())
	assert.Equal(t, []types.Tx{types.Tx("tx-1"), types.Tx("tx-3")}, mp.ReapTxs(0))

	tx, err := mp.GetTx(hashes[1])
	require.NoError(t, err)
	assert.Equal(t, types.Tx("tx-1"), tx)
	_, err = mp.GetTx(hashes[0])
	assert.ErrorIs(t, err, types.ErrTxNotFound)

	mp.Flush()
	assert.Zero(t, mp.Size())
	assert.Zero(t, mp.SizeBytes())
}

func TestSimpleMempool_Concurrent(t *testing.T) {
	mp := NewSimpleMempool(0, 0, 0)
	mp.SetTxValidator(AcceptAllTxValidator)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = mp.AddTx(types.Tx(fmt.Sprintf("tx-%d", i)))
			_ = mp.ReapTxs(0)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, mp.Size())
}
