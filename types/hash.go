package types

import "crypto/sha256"

// HashSize is the length of every Hash.
const HashSize = sha256.Size

// HashTx returns the hash a transaction is indexed by in the mempool, the
// tx_search index and the accepted/applied events. A nil tx has a nil hash.
func HashTx(tx Tx) Hash {
	return HashBytes(tx)
}

// HashBytes returns the SHA-256 of data, or nil for nil data.
func HashBytes(data []byte) Hash {
	if data == nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
