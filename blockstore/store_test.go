package blockstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/queryberry/types"
)

func testBlock(height types.Height, txs ...string) *types.Block {
	b := &types.Block{Header: types.BlockHeader{
		ChainID: "test-chain",
		Height:  height,
		Time:    types.Timestamp{Seconds: int64(height) * 10},
	}}
	for _, tx := range txs {
		b.Txs = append(b.Txs, types.Tx(tx))
	}
	return b
}

func backends(t *testing.T) map[string]func(t *testing.T) BlockStore {
	return map[string]func(t *testing.T) BlockStore{
		BackendMemory: func(t *testing.T) BlockStore {
			return NewMemoryBlockStore()
		},
		BackendLevelDB: func(t *testing.T) BlockStore {
			s, err := NewLevelDBBlockStore(filepath.Join(t.TempDir(), "blocks"), 2)
			require.NoError(t, err)
			return s
		},
		BackendBadgerDB: func(t *testing.T) BlockStore {
			opts := DefaultBadgerDBOptions()
			opts.InMemory = true
			s, err := NewBadgerDBBlockStoreWithOptions("", opts)
			require.NoError(t, err)
			return s
		},
	}
}

func TestBlockStore_Backends(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			defer store.Close()

			assert.Equal(t, types.Height(0), store.Height())
			assert.Equal(t, types.Height(0), store.Base())

			results := &types.BlockResults{Height: 2, TxResults: []types.TxResult{{Code: 0, Log: "ok"}}}
			commit := &types.Commit{Height: 2, Round: 1}
			require.NoError(t, store.SaveBlock(testBlock(2, "tx-a", "tx-b"), results, commit))
			require.NoError(t, store.SaveBlock(testBlock(3), nil, nil))

			assert.Equal(t, types.Height(3), store.Height())
			assert.Equal(t, types.Height(2), store.Base())
			assert.True(t, store.HasBlock(2))
			assert.False(t, store.HasBlock(1))

			block, err := store.LoadBlock(2)
			require.NoError(t, err)
			assert.Equal(t, "test-chain", block.Header.ChainID)
			require.Len(t, block.Txs, 2)
			assert.Equal(t, types.Tx("tx-b"), block.Txs[1])

			byHash, err := store.LoadBlockByHash(block.Hash())
			require.NoError(t, err)
			assert.Equal(t, types.Height(2), byHash.Header.Height)

			gotResults, err := store.LoadBlockResults(2)
			require.NoError(t, err)
			require.Len(t, gotResults.TxResults, 1)
			assert.Equal(t, "ok", gotResults.TxResults[0].Log)

			gotCommit, err := store.LoadCommit(2)
			require.NoError(t, err)
			assert.Equal(t, uint32(1), gotCommit.Round)

			_, err = store.LoadBlockResults(3)
			assert.ErrorIs(t, err, types.ErrBlockNotFound)
			_, err = store.LoadCommit(3)
			assert.ErrorIs(t, err, types.ErrBlockNotFound)
			_, err = store.LoadBlock(9)
			assert.ErrorIs(t, err, types.ErrBlockNotFound)
			_, err = store.LoadBlockByHash(types.HashBytes([]byte("missing")))
			assert.ErrorIs(t, err, types.ErrBlockNotFound)

			assert.ErrorIs(t, store.SaveBlock(testBlock(2), nil, nil), types.ErrBlockAlreadyExists)
			assert.ErrorIs(t, store.SaveBlock(testBlock(0), nil, nil), ErrInvalidBlock)
			assert.ErrorIs(t, store.SaveBlock(nil, nil, nil), ErrInvalidBlock)
		})
	}
}

func TestLevelDBBlockStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks")

	store, err := NewLevelDBBlockStore(path, 0)
	require.NoError(t, err)
	for h := types.Height(1); h <= 5; h++ {
		require.NoError(t, store.SaveBlock(testBlock(h), nil, nil))
	}
	require.NoError(t, store.Close())

	reopened, err := NewLevelDBBlockStore(path, 2)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, types.Height(5), reopened.Height())
	assert.Equal(t, types.Height(1), reopened.Base())
	for h := types.Height(1); h <= 5; h++ {
		block, err := reopened.LoadBlock(h)
		require.NoError(t, err)
		assert.Equal(t, h, block.Header.Height)
	}
}

func TestOpen(t *testing.T) {
	store, err := Open(BackendMemory, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBlockStore{}, store)

	store, err = Open(BackendLevelDB, filepath.Join(t.TempDir(), "blocks"), 0)
	require.NoError(t, err)
	assert.IsType(t, &LevelDBBlockStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open("rocksdb", "", 0)
	assert.Error(t, err)
}
