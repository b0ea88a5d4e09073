package blockstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/blockberries/queryberry/types"
)

// BadgerDBBlockStore implements BlockStore using BadgerDB.
// BadgerDB is optimized for SSDs and offers better write performance
// than LevelDB for certain workloads.
type BadgerDBBlockStore struct {
	db     *badger.DB
	path   string
	height types.Height
	base   types.Height
	mu     sync.RWMutex
}

// BadgerDBOptions contains configuration options for BadgerDB.
type BadgerDBOptions struct {
	// SyncWrites ensures durability by syncing writes to disk.
	// Default: true
	SyncWrites bool

	// Compression enables Snappy compression for values.
	// Default: true
	Compression bool

	// InMemory keeps all data in memory. Path must be empty.
	InMemory bool

	// ValueLogFileSize is the maximum size of a single value log file.
	// Default: 1GB
	ValueLogFileSize int64

	// MemTableSize is the size of the memtable.
	// Default: 64MB
	MemTableSize int64

	// Logger is an optional logger for BadgerDB.
	// If nil, logging is disabled.
	Logger badger.Logger
}

// DefaultBadgerDBOptions returns sensible default options.
func DefaultBadgerDBOptions() *BadgerDBOptions {
	return &BadgerDBOptions{
		SyncWrites:       true,
		Compression:      true,
		ValueLogFileSize: 1 << 30,
		MemTableSize:     64 << 20,
	}
}

// NewBadgerDBBlockStore creates a new BadgerDB-backed block store.
func NewBadgerDBBlockStore(path string) (*BadgerDBBlockStore, error) {
	return NewBadgerDBBlockStoreWithOptions(path, DefaultBadgerDBOptions())
}

// NewBadgerDBBlockStoreWithOptions creates a new BadgerDB-backed block store
// with custom options.
func NewBadgerDBBlockStoreWithOptions(path string, opts *BadgerDBOptions) (*BadgerDBBlockStore, error) {
	if opts == nil {
		opts = DefaultBadgerDBOptions()
	}

	badgerOpts := badger.DefaultOptions(path).
		WithSyncWrites(opts.SyncWrites).
		WithInMemory(opts.InMemory).
		WithValueLogFileSize(opts.ValueLogFileSize).
		WithMemTableSize(opts.MemTableSize).
		WithLogger(opts.Logger)
	if opts.Compression {
		badgerOpts = badgerOpts.WithCompression(options.Snappy)
	} else {
		badgerOpts = badgerOpts.WithCompression(options.None)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badgerdb: %w", err)
	}

	store := &BadgerDBBlockStore{
		db:   db,
		path: path,
	}
	if err := store.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	return store, nil
}

// loadMetadata loads the height and base from the database.
func (s *BadgerDBBlockStore) loadMetadata() error {
	return s.db.View(func(txn *badger.Txn) error {
		for key, dst := range map[string]*types.Height{
			string(keyMetaHeight): &s.height,
			string(keyMetaBase):   &s.base,
		} {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				*dst = decodeHeight(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveBlock persists a block with its results and commit in one transaction.
func (s *BadgerDBBlockStore) SaveBlock(block *types.Block, results *types.BlockResults, commit *types.Commit) error {
	enc, err := encodeBlock(block, results, commit)
	if err != nil {
		return err
	}
	height := block.Header.Height

	s.mu.Lock()
	defer s.mu.Unlock()

	heightKey := makeHeightKey(prefixHeight, height)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(heightKey); err == nil {
			return types.ErrBlockAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(heightKey, enc.hash); err != nil {
			return err
		}
		if err := txn.Set(makeBlockKey(enc.hash), enc.block); err != nil {
			return err
		}
		if enc.results != nil {
			if err := txn.Set(makeHeightKey(prefixResults, height), enc.results); err != nil {
				return err
			}
		}
		if enc.commit != nil {
			if err := txn.Set(makeHeightKey(prefixCommit, height), enc.commit); err != nil {
				return err
			}
		}
		if height > s.height {
			if err := txn.Set(keyMetaHeight, encodeHeight(height)); err != nil {
				return err
			}
		}
		if s.base == 0 || height < s.base {
			if err := txn.Set(keyMetaBase, encodeHeight(height)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, types.ErrBlockAlreadyExists) {
		return err
	}
	if err != nil {
		return fmt.Errorf("writing block: %w", err)
	}

	if height > s.height {
		s.height = height
	}
	if s.base == 0 || height < s.base {
		s.base = height
	}
	return nil
}

// get reads a value, mapping a missing key to types.ErrBlockNotFound.
func (s *BadgerDBBlockStore) get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// LoadBlock retrieves a block by height.
func (s *BadgerDBBlockStore) LoadBlock(height types.Height) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		hash, err := s.get(txn, makeHeightKey(prefixHeight, height))
		if err != nil {
			return err
		}
		data, err = s.get(txn, makeBlockKey(hash))
		return err
	})
	if err != nil {
		return nil, err
	}
	return types.DecodeBlock(data)
}

// LoadBlockByHash retrieves a block by its hash.
func (s *BadgerDBBlockStore) LoadBlockByHash(hash types.Hash) (*types.Block, error) {
	data, err := s.view(makeBlockKey(hash))
	if err != nil {
		return nil, err
	}
	return types.DecodeBlock(data)
}

// LoadBlockResults retrieves the execution results of a block.
func (s *BadgerDBBlockStore) LoadBlockResults(height types.Height) (*types.BlockResults, error) {
	data, err := s.view(makeHeightKey(prefixResults, height))
	if err != nil {
		return nil, err
	}
	return decodeResults(data)
}

// LoadCommit retrieves the commit of a block.
func (s *BadgerDBBlockStore) LoadCommit(height types.Height) (*types.Commit, error) {
	data, err := s.view(makeHeightKey(prefixCommit, height))
	if err != nil {
		return nil, err
	}
	return decodeCommit(data)
}

func (s *BadgerDBBlockStore) view(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		data, err = s.get(txn, key)
		return err
	})
	return data, err
}

// HasBlock checks if a block exists at the given height.
func (s *BadgerDBBlockStore) HasBlock(height types.Height) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(makeHeightKey(prefixHeight, height))
		return err
	})
	return err == nil
}

// Height returns the latest block height.
func (s *BadgerDBBlockStore) Height() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Base returns the earliest available block height.
func (s *BadgerDBBlockStore) Base() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Close closes the database.
func (s *BadgerDBBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ BlockStore = (*BadgerDBBlockStore)(nil)
