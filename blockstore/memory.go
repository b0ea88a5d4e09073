package blockstore

import (
	"sync"

	"github.com/blockberries/queryberry/types"
)

// MemoryBlockStore implements BlockStore with in-memory storage.
// Primarily used for testing.
type MemoryBlockStore struct {
	blocks map[types.Height]memoryEntry
	byHash map[string]types.Height
	height types.Height
	base   types.Height
	mu     sync.RWMutex
}

type memoryEntry struct {
	block   *types.Block
	results *types.BlockResults
	commit  *types.Commit
}

// NewMemoryBlockStore creates a new in-memory block store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{
		blocks: make(map[types.Height]memoryEntry),
		byHash: make(map[string]types.Height),
	}
}

// SaveBlock stores a block.
func (m *MemoryBlockStore) SaveBlock(block *types.Block, results *types.BlockResults, commit *types.Commit) error {
	if err := validateBlock(block); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	height := block.Header.Height
	if _, exists := m.blocks[height]; exists {
		return types.ErrBlockAlreadyExists
	}

	m.blocks[height] = memoryEntry{block: block, results: results, commit: commit}
	m.byHash[string(block.Hash())] = height

	if height > m.height {
		m.height = height
	}
	if m.base == 0 || height < m.base {
		m.base = height
	}
	return nil
}

// LoadBlock retrieves a block by height.
func (m *MemoryBlockStore) LoadBlock(height types.Height) (*types.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.blocks[height]
	if !ok {
		return nil, types.ErrBlockNotFound
	}
	return entry.block, nil
}

// LoadBlockByHash retrieves a block by its hash.
func (m *MemoryBlockStore) LoadBlockByHash(hash types.Hash) (*types.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	height, ok := m.byHash[string(hash)]
	if !ok {
		return nil, types.ErrBlockNotFound
	}
	return m.blocks[height].block, nil
}

// LoadBlockResults retrieves the execution results of a block.
func (m *MemoryBlockStore) LoadBlockResults(height types.Height) (*types.BlockResults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.blocks[height]
	if !ok || entry.results == nil {
		return nil, types.ErrBlockNotFound
	}
	return entry.results, nil
}

// LoadCommit retrieves the commit of a block.
func (m *MemoryBlockStore) LoadCommit(height types.Height) (*types.Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.blocks[height]
	if !ok || entry.commit == nil {
		return nil, types.ErrBlockNotFound
	}
	return entry.commit, nil
}

// HasBlock checks if a block exists at the given height.
func (m *MemoryBlockStore) HasBlock(height types.Height) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blocks[height]
	return ok
}

// Height returns the latest block height.
func (m *MemoryBlockStore) Height() types.Height {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height
}

// Base returns the earliest available block height.
func (m *MemoryBlockStore) Base() types.Height {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.base
}

// Close is a no-op for the memory store.
func (m *MemoryBlockStore) Close() error {
	return nil
}

var _ BlockStore = (*MemoryBlockStore)(nil)
