package mempool

import (
	"container/list"
	"sync"

	"github.com/blockberries/queryberry/types"
)

// pooledTx is a queued transaction with its precomputed hash.
type pooledTx struct {
	hash types.Hash
	tx   types.Tx
}

// SimpleMempool is a FIFO Mempool bounded by transaction count and total
// bytes. Transactions are reaped in arrival order.
type SimpleMempool struct {
	queue *list.List               // of *pooledTx, oldest first
	byKey map[string]*list.Element // hash -> queue element

	maxTxs    int
	maxBytes  int64
	maxTxSize int64

	sizeBytes int64
	validator TxValidator

	mu sync.RWMutex
}

// NewSimpleMempool creates a new simple mempool. Zero limits are unbounded.
func NewSimpleMempool(maxTxs int, maxBytes int64, maxTxSize int64) *SimpleMempool {
	return &SimpleMempool{
		queue:     list.New(),
		byKey:     make(map[string]*list.Element),
		maxTxs:    maxTxs,
		maxBytes:  maxBytes,
		maxTxSize: maxTxSize,
	}
}

// AddTx queues a copy of tx after validating it.
// Without a validator every tx is rejected with types.ErrNoTxValidator.
func (m *SimpleMempool) AddTx(tx types.Tx) error {
	if tx == nil {
		return types.ErrInvalidTx
	}
	size := int64(len(tx))
	if m.maxTxSize > 0 && size > m.maxTxSize {
		return types.ErrTxTooLarge
	}
	hash := types.HashTx(tx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[string(hash)]; ok {
		return types.ErrTxAlreadyExists
	}
	validate := m.validator
	if validate == nil {
		validate = DefaultTxValidator
	}
	if err := validate(tx); err != nil {
		return err
	}
	if m.full(size) {
		return types.ErrMempoolFull
	}

	m.byKey[string(hash)] = m.queue.PushBack(&pooledTx{hash: hash, tx: append(types.Tx(nil), tx...)})
	m.sizeBytes += size
	return nil
}

// full reports whether admitting size more bytes breaks a limit.
// Must be called with m.mu held.
func (m *SimpleMempool) full(size int64) bool {
	if m.maxTxs > 0 && m.queue.Len() >= m.maxTxs {
		return true
	}
	return m.maxBytes > 0 && m.sizeBytes+size > m.maxBytes
}

// RemoveTxs drops the transactions with the given hashes.
func (m *SimpleMempool) RemoveTxs(hashes []types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hash := range hashes {
		elem, ok := m.byKey[string(hash)]
		if !ok {
			continue
		}
		m.sizeBytes -= int64(len(elem.Value.(*pooledTx).tx))
		m.queue.Remove(elem)
		delete(m.byKey, string(hash))
	}
}

// ReapTxs returns the oldest transactions fitting in maxBytes. A
// non-positive maxBytes falls back to the mempool's byte limit.
func (m *SimpleMempool) ReapTxs(maxBytes int64) []types.Tx {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxBytes <= 0 {
		maxBytes = m.maxBytes
	}

	txs := make([]types.Tx, 0, m.queue.Len())
	var total int64
	for elem := m.queue.Front(); elem != nil; elem = elem.Next() {
		tx := elem.Value.(*pooledTx).tx
		if maxBytes > 0 && total+int64(len(tx)) > maxBytes {
			break
		}
		txs = append(txs, append(types.Tx(nil), tx...))
		total += int64(len(tx))
	}
	return txs
}

// HasTx reports whether a transaction with hash is queued.
func (m *SimpleMempool) HasTx(hash types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byKey[string(hash)]
	return ok
}

// GetTx returns a copy of the queued transaction with hash.
func (m *SimpleMempool) GetTx(hash types.Hash) (types.Tx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elem, ok := m.byKey[string(hash)]
	if !ok {
		return nil, types.ErrTxNotFound
	}
	return append(types.Tx(nil), elem.Value.(*pooledTx).tx...), nil
}

// Size returns the number of queued transactions.
func (m *SimpleMempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queue.Len()
}

// SizeBytes returns the total size of queued transactions.
func (m *SimpleMempool) SizeBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes
}

// Flush drops every queued transaction.
func (m *SimpleMempool) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.Init()
	clear(m.byKey)
	m.sizeBytes = 0
}

// SetTxValidator sets the function AddTx checks transactions with.
func (m *SimpleMempool) SetTxValidator(validator TxValidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validator = validator
}

var _ Mempool = (*SimpleMempool)(nil)
