// Package mempool provides the pool holding transactions submitted through
// broadcast_tx_sync until a block includes them.
package mempool

import (
	"github.com/blockberries/queryberry/types"
)

// Mempool defines the interface for transaction pool management.
// Implementations must be safe for concurrent use.
type Mempool interface {
	// AddTx validates and adds a transaction to the mempool.
	// Returns an error if the transaction is invalid, already exists or the
	// mempool is full.
	AddTx(tx types.Tx) error

	// RemoveTxs removes transactions by their hashes.
	// Silently ignores hashes that don't exist in the mempool.
	RemoveTxs(hashes []types.Hash)

	// ReapTxs returns up to maxBytes worth of transactions in insertion order.
	// The returned transactions remain in the mempool.
	ReapTxs(maxBytes int64) []types.Tx

	// HasTx checks if a transaction with the given hash exists in the mempool.
	HasTx(hash types.Hash) bool

	// GetTx retrieves a transaction by its hash.
	// Returns types.ErrTxNotFound if the transaction doesn't exist.
	GetTx(hash types.Hash) (types.Tx, error)

	// Size returns the number of transactions in the mempool.
	Size() int

	// SizeBytes returns the total size in bytes of all transactions.
	SizeBytes() int64

	// Flush removes all transactions from the mempool.
	Flush()
}

// TxValidator checks a transaction before it enters the mempool.
type TxValidator func(tx types.Tx) error

// DefaultTxValidator rejects every transaction. A mempool without an
// explicit validator fails closed.
func DefaultTxValidator(types.Tx) error {
	return types.ErrNoTxValidator
}

// AcceptAllTxValidator accepts every non-empty transaction.
func AcceptAllTxValidator(tx types.Tx) error {
	if len(tx) == 0 {
		return types.ErrInvalidTx
	}
	return nil
}
