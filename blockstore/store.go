// Package blockstore provides block storage interface and implementations.
package blockstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/queryberry/types"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendBadgerDB = "badgerdb"
)

// ErrInvalidBlock is returned when a block cannot be stored.
var ErrInvalidBlock = errors.New("invalid block")

// BlockStore defines the interface for block persistence.
// Implementations must be safe for concurrent use.
type BlockStore interface {
	// SaveBlock persists a block with its execution results and commit.
	// results and commit may be nil.
	// Returns types.ErrBlockAlreadyExists if a block exists at that height.
	SaveBlock(block *types.Block, results *types.BlockResults, commit *types.Commit) error

	// LoadBlock retrieves a block by height.
	// Returns types.ErrBlockNotFound if the block does not exist.
	LoadBlock(height types.Height) (*types.Block, error)

	// LoadBlockByHash retrieves a block by its hash.
	// Returns types.ErrBlockNotFound if the block does not exist.
	LoadBlockByHash(hash types.Hash) (*types.Block, error)

	// LoadBlockResults retrieves the execution results of a block.
	LoadBlockResults(height types.Height) (*types.BlockResults, error)

	// LoadCommit retrieves the commit that finalized a block.
	LoadCommit(height types.Height) (*types.Commit, error)

	// HasBlock checks if a block exists at the given height.
	HasBlock(height types.Height) bool

	// Height returns the latest block height, 0 if empty.
	Height() types.Height

	// Base returns the earliest available block height, 0 if empty.
	Base() types.Height

	// Close closes the store and releases resources.
	Close() error
}

// Open opens a block store for the named backend.
func Open(backend, path string, cacheSize int) (BlockStore, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryBlockStore(), nil
	case BackendLevelDB, "":
		return NewLevelDBBlockStore(path, cacheSize)
	case BackendBadgerDB:
		return NewBadgerDBBlockStore(path)
	default:
		return nil, fmt.Errorf("unknown block store backend %q", backend)
	}
}

func validateBlock(block *types.Block) error {
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	if block.Header.Height == 0 {
		return fmt.Errorf("%w: height must be positive", ErrInvalidBlock)
	}
	return nil
}

// Key prefixes shared by the on-disk backends.
var (
	prefixHeight  = []byte("H:") // Height -> Hash mapping
	prefixBlock   = []byte("B:") // Hash -> Block data mapping
	prefixResults = []byte("R:") // Height -> BlockResults
	prefixCommit  = []byte("C:") // Height -> Commit
	keyMetaHeight = []byte("M:height")
	keyMetaBase   = []byte("M:base")
)

func makeHeightKey(prefix []byte, height types.Height) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(height))
	return key
}

func makeBlockKey(hash []byte) []byte {
	key := make([]byte, len(prefixBlock)+len(hash))
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash)
	return key
}

func encodeHeight(h types.Height) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(h))
	return buf
}

func decodeHeight(data []byte) types.Height {
	if len(data) < 8 {
		return 0
	}
	return types.Height(binary.BigEndian.Uint64(data))
}

// encodedBlock holds the serialized forms written by the on-disk backends.
type encodedBlock struct {
	hash    types.Hash
	block   []byte
	results []byte
	commit  []byte
}

func encodeBlock(block *types.Block, results *types.BlockResults, commit *types.Commit) (*encodedBlock, error) {
	if err := validateBlock(block); err != nil {
		return nil, err
	}
	enc := &encodedBlock{hash: block.Hash()}

	var err error
	if enc.block, err = block.Encode(); err != nil {
		return nil, fmt.Errorf("encoding block: %w", err)
	}
	if results != nil {
		if enc.results, err = cramberry.Marshal(results); err != nil {
			return nil, fmt.Errorf("encoding block results: %w", err)
		}
	}
	if commit != nil {
		if enc.commit, err = cramberry.Marshal(commit); err != nil {
			return nil, fmt.Errorf("encoding commit: %w", err)
		}
	}
	return enc, nil
}

func decodeResults(data []byte) (*types.BlockResults, error) {
	var results types.BlockResults
	if err := cramberry.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding block results: %w", err)
	}
	return &results, nil
}

func decodeCommit(data []byte) (*types.Commit, error) {
	var commit types.Commit
	if err := cramberry.Unmarshal(data, &commit); err != nil {
		return nil, fmt.Errorf("decoding commit: %w", err)
	}
	return &commit, nil
}
