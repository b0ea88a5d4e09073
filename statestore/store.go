// Package statestore provides versioned merkleized ledger state.
//
// Every committed block height is an immutable store version. Reads always
// target a committed version, never the working tree, so a query served
// while a block is being applied observes either the previous or the new
// version in full.
package statestore

import (
	"github.com/blockberries/queryberry/types"
)

// StateStore defines the interface for versioned merkleized key-value state.
// Heights map one-to-one onto store versions. Height 0 reads the latest
// committed version. Implementations must be safe for concurrent use.
type StateStore interface {
	// Get returns the value for key as of height, or nil if absent.
	Get(key []byte, height types.Height) ([]byte, error)

	// Has checks whether key exists as of height.
	Has(key []byte, height types.Height) (bool, error)

	// IteratePrefix visits keys with the given prefix as of height in
	// ascending order until fn returns false.
	IteratePrefix(prefix []byte, height types.Height, fn func(key, value []byte) bool) error

	// GetProof returns an ICS23 existence or non-existence proof for key
	// as of height.
	GetProof(key []byte, height types.Height) (*types.Proof, error)

	// RootHash returns the root hash of the committed version at height.
	RootHash(height types.Height) ([]byte, error)

	// Set stores a key-value pair in the working tree.
	// The change is not visible to reads until Commit is called.
	Set(key []byte, value []byte) error

	// Delete removes a key from the working tree.
	Delete(key []byte) error

	// Commit saves the working tree as the next version and records the
	// block metadata reported by LastBlock.
	Commit(blockHash types.Hash, blockTime types.Timestamp) (types.LastBlock, error)

	// LastBlockHeight returns the latest committed height, 0 before the first commit.
	LastBlockHeight() types.Height

	// LastBlock returns the metadata of the last commit.
	LastBlock() (types.LastBlock, bool)

	// Close closes the store and releases resources.
	Close() error
}
