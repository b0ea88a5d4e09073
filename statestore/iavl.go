package statestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cosmos/iavl"
	idb "github.com/cosmos/iavl/db"

	"github.com/blockberries/queryberry/types"
)

// ProofOpIAVL is the proof op type of serialized ICS23 IAVL commitment proofs.
const ProofOpIAVL = "ics23:iavl"

// IAVLStore implements StateStore using a cosmos/iavl merkle tree.
type IAVLStore struct {
	tree *iavl.MutableTree
	db   idb.DB
	mu   sync.RWMutex

	lastBlock types.LastBlock
	closed    bool
}

// NewIAVLStore creates a new IAVL-backed state store.
// path is the directory for persistent storage.
// cacheSize is the number of nodes to cache in memory.
func NewIAVLStore(path string, cacheSize int) (*IAVLStore, error) {
	db, err := idb.NewGoLevelDB("state", path)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb for iavl: %w", err)
	}

	tree := iavl.NewMutableTree(db, cacheSize, false, iavl.NewNopLogger())
	if _, err := tree.Load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading iavl tree: %w", err)
	}

	return newIAVLStore(tree, db), nil
}

// NewMemoryIAVLStore creates an in-memory IAVL store for testing.
func NewMemoryIAVLStore(cacheSize int) *IAVLStore {
	db := idb.NewMemDB()
	return newIAVLStore(iavl.NewMutableTree(db, cacheSize, false, iavl.NewNopLogger()), db)
}

func newIAVLStore(tree *iavl.MutableTree, db idb.DB) *IAVLStore {
	s := &IAVLStore{tree: tree, db: db}
	// Block hash and time are not persisted; a reopened store only knows
	// its height until the next commit.
	s.lastBlock.Height = types.Height(tree.Version())
	return s
}

// treeAt returns the immutable committed tree for height, or nil if nothing
// has been committed yet. The caller must hold s.mu.
func (s *IAVLStore) treeAt(height types.Height) (*iavl.ImmutableTree, error) {
	if s.closed {
		return nil, types.ErrStoreClosed
	}
	latest := s.tree.Version()
	version := int64(height)
	if height.IsLatest() {
		if latest == 0 {
			return nil, nil
		}
		version = latest
	}
	if version < 0 || version > latest || !s.tree.VersionExists(version) {
		return nil, fmt.Errorf("%w: height %d", types.ErrVersionNotFound, height)
	}

	tree, err := s.tree.GetImmutable(version)
	if err != nil {
		return nil, fmt.Errorf("loading version %d: %w", version, err)
	}
	return tree, nil
}

// Get returns the value for key as of height.
func (s *IAVLStore) Get(key []byte, height types.Height) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeAt(height)
	if err != nil || tree == nil {
		return nil, err
	}
	value, err := tree.Get(key)
	if err != nil {
		return nil, fmt.Errorf("getting key: %w", err)
	}
	return value, nil
}

// Has checks whether key exists as of height.
func (s *IAVLStore) Has(key []byte, height types.Height) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeAt(height)
	if err != nil || tree == nil {
		return false, err
	}
	has, err := tree.Has(key)
	if err != nil {
		return false, fmt.Errorf("checking key existence: %w", err)
	}
	return has, nil
}

// IteratePrefix visits every key with prefix as of height in ascending order.
func (s *IAVLStore) IteratePrefix(prefix []byte, height types.Height, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeAt(height)
	if err != nil || tree == nil {
		return err
	}
	tree.IterateRange(prefix, prefixEnd(prefix), true, fn)
	return nil
}

// GetProof returns an ICS23 existence or non-existence proof for key.
func (s *IAVLStore) GetProof(key []byte, height types.Height) (*types.Proof, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", types.ErrKeyNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeAt(height)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: nothing committed yet", types.ErrVersionNotFound)
	}

	proof, err := tree.GetProof(key)
	if err != nil {
		return nil, fmt.Errorf("getting proof: %w", err)
	}
	proofBytes, err := proof.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling proof: %w", err)
	}

	return &types.Proof{Ops: []types.ProofOp{{
		Type: ProofOpIAVL,
		Key:  key,
		Data: proofBytes,
	}}}, nil
}

// RootHash returns the root hash of the committed version at height.
func (s *IAVLStore) RootHash(height types.Height) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeAt(height)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return s.tree.WorkingHash(), nil
	}
	return tree.Hash(), nil
}

// Set stores a key-value pair in the working tree.
func (s *IAVLStore) Set(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	if key == nil {
		return errors.New("key cannot be nil")
	}
	if value == nil {
		return errors.New("value cannot be nil")
	}
	if _, err := s.tree.Set(key, value); err != nil {
		return fmt.Errorf("setting key: %w", err)
	}
	return nil
}

// Delete removes a key from the working tree.
func (s *IAVLStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	if key == nil {
		return errors.New("key cannot be nil")
	}
	if _, _, err := s.tree.Remove(key); err != nil {
		return fmt.Errorf("removing key: %w", err)
	}
	return nil
}

// Commit saves the working tree as a new version.
func (s *IAVLStore) Commit(blockHash types.Hash, blockTime types.Timestamp) (types.LastBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.LastBlock{}, types.ErrStoreClosed
	}
	_, version, err := s.tree.SaveVersion()
	if err != nil {
		return types.LastBlock{}, fmt.Errorf("saving version: %w", err)
	}
	s.lastBlock = types.LastBlock{
		Height: types.Height(version),
		Hash:   blockHash,
		Time:   blockTime,
	}
	return s.lastBlock, nil
}

// LastBlockHeight returns the latest committed height.
func (s *IAVLStore) LastBlockHeight() types.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlock.Height
}

// LastBlock returns metadata of the last commit, false before the first one.
func (s *IAVLStore) LastBlock() (types.LastBlock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlock, s.lastBlock.Height > 0
}

// Prune deletes every version older than the most recent keepRecent.
func (s *IAVLStore) Prune(keepRecent int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	to := s.tree.Version() - keepRecent
	if keepRecent <= 0 || to < 1 {
		return nil
	}
	if err := s.tree.DeleteVersionsTo(to); err != nil {
		return fmt.Errorf("pruning versions up to %d: %w", to, err)
	}
	return nil
}

// Close closes the store and releases resources.
func (s *IAVLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

var _ StateStore = (*IAVLStore)(nil)
