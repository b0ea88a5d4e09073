package blockstore

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/blockberries/queryberry/types"
)

// DefaultCacheSize is the number of decoded blocks kept in memory.
const DefaultCacheSize = 256

// LevelDBBlockStore implements BlockStore using LevelDB.
// Decoded blocks are kept in an LRU cache keyed by height.
type LevelDBBlockStore struct {
	db     *leveldb.DB
	path   string
	height types.Height
	base   types.Height
	cache  *lru.Cache[types.Height, *types.Block]
	mu     sync.RWMutex
}

// NewLevelDBBlockStore creates a new LevelDB-backed block store.
// A non-positive cacheSize selects DefaultCacheSize.
func NewLevelDBBlockStore(path string, cacheSize int) (*LevelDBBlockStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[types.Height, *types.Block](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}

	db, err := leveldb.OpenFile(path, &opt.Options{
		NoSync: false,
	})
	if err != nil {
		return nil, fmt.Errorf("opening leveldb: %w", err)
	}

	store := &LevelDBBlockStore{
		db:    db,
		path:  path,
		cache: cache,
	}
	if err := store.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	return store, nil
}

// loadMetadata loads the height and base from the database.
func (s *LevelDBBlockStore) loadMetadata() error {
	data, err := s.db.Get(keyMetaHeight, nil)
	if err == nil {
		s.height = decodeHeight(data)
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}

	data, err = s.db.Get(keyMetaBase, nil)
	if err == nil {
		s.base = decodeHeight(data)
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}
	return nil
}

// SaveBlock persists a block with its results and commit in one batch.
func (s *LevelDBBlockStore) SaveBlock(block *types.Block, results *types.BlockResults, commit *types.Commit) error {
	enc, err := encodeBlock(block, results, commit)
	if err != nil {
		return err
	}
	height := block.Header.Height

	s.mu.Lock()
	defer s.mu.Unlock()

	heightKey := makeHeightKey(prefixHeight, height)
	exists, err := s.db.Has(heightKey, nil)
	if err != nil {
		return fmt.Errorf("checking block existence: %w", err)
	}
	if exists {
		return types.ErrBlockAlreadyExists
	}

	batch := new(leveldb.Batch)
	batch.Put(heightKey, enc.hash)
	batch.Put(makeBlockKey(enc.hash), enc.block)
	if enc.results != nil {
		batch.Put(makeHeightKey(prefixResults, height), enc.results)
	}
	if enc.commit != nil {
		batch.Put(makeHeightKey(prefixCommit, height), enc.commit)
	}
	if height > s.height {
		batch.Put(keyMetaHeight, encodeHeight(height))
	}
	if s.base == 0 || height < s.base {
		batch.Put(keyMetaBase, encodeHeight(height))
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}

	if height > s.height {
		s.height = height
	}
	if s.base == 0 || height < s.base {
		s.base = height
	}
	s.cache.Add(height, block)
	return nil
}

// LoadBlock retrieves a block by height.
func (s *LevelDBBlockStore) LoadBlock(height types.Height) (*types.Block, error) {
	if block, ok := s.cache.Get(height); ok {
		return block, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, err := s.db.Get(makeHeightKey(prefixHeight, height), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, types.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting hash for height %d: %w", height, err)
	}
	return s.loadByHash(hash)
}

// LoadBlockByHash retrieves a block by its hash.
func (s *LevelDBBlockStore) LoadBlockByHash(hash types.Hash) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadByHash(hash)
}

func (s *LevelDBBlockStore) loadByHash(hash []byte) (*types.Block, error) {
	data, err := s.db.Get(makeBlockKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, types.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting block data: %w", err)
	}

	block, err := types.DecodeBlock(data)
	if err != nil {
		return nil, fmt.Errorf("decoding block: %w", err)
	}
	s.cache.Add(block.Header.Height, block)
	return block, nil
}

// LoadBlockResults retrieves the execution results of a block.
func (s *LevelDBBlockStore) LoadBlockResults(height types.Height) (*types.BlockResults, error) {
	data, err := s.get(makeHeightKey(prefixResults, height))
	if err != nil {
		return nil, err
	}
	return decodeResults(data)
}

// LoadCommit retrieves the commit of a block.
func (s *LevelDBBlockStore) LoadCommit(height types.Height) (*types.Commit, error) {
	data, err := s.get(makeHeightKey(prefixCommit, height))
	if err != nil {
		return nil, err
	}
	return decodeCommit(data)
}

func (s *LevelDBBlockStore) get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, types.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key[:2], err)
	}
	return data, nil
}

// HasBlock checks if a block exists at the given height.
func (s *LevelDBBlockStore) HasBlock(height types.Height) bool {
	if s.cache.Contains(height) {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, _ := s.db.Has(makeHeightKey(prefixHeight, height), nil)
	return exists
}

// Height returns the latest block height.
func (s *LevelDBBlockStore) Height() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Base returns the earliest available block height.
func (s *LevelDBBlockStore) Base() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Close closes the database.
func (s *LevelDBBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Purge()
	return s.db.Close()
}

var _ BlockStore = (*LevelDBBlockStore)(nil)
