// Package types provides common type definitions for queryberry.
package types

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

// Height represents a committed block height.
// The zero value is the "latest committed height" sentinel in queries.
type Height uint64

// LatestHeight is the height sentinel meaning "latest committed height".
const LatestHeight Height = 0

// String returns the height as a string.
func (h Height) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Uint64 returns the height as a uint64.
func (h Height) Uint64() uint64 {
	return uint64(h)
}

// IsLatest returns true if the height is the latest-height sentinel.
func (h Height) IsLatest() bool {
	return h == LatestHeight
}

// Int64 converts the height into the signed representation used by the
// consensus RPC. Heights above math.MaxInt64 cannot be represented.
func (h Height) Int64() (int64, error) {
	if uint64(h) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d exceeds the transport height range", ErrInvalidHeight, uint64(h))
	}
	return int64(h), nil
}

// HeightFromInt64 converts a signed transport height back to a Height.
func HeightFromInt64(h int64) (Height, error) {
	if h < 0 {
		return 0, fmt.Errorf("%w: negative height %d", ErrInvalidHeight, h)
	}
	return Height(h), nil
}

// Epoch is a proof-of-stake epoch number.
type Epoch uint64

// String returns the epoch as a string.
func (e Epoch) String() string {
	return strconv.FormatUint(uint64(e), 10)
}

// Amount is a token amount in the token's smallest denomination.
type Amount uint64

// String returns the amount as a string.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Add returns a+b and false if the sum overflows.
func (a Amount) Add(b Amount) (Amount, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Hash represents a cryptographic hash (typically 32 bytes for SHA-256).
type Hash []byte

// String returns the hash as a hexadecimal string.
func (h Hash) String() string {
	return hex.EncodeToString(h)
}

// Bytes returns the raw bytes of the hash.
func (h Hash) Bytes() []byte {
	return []byte(h)
}

// IsEmpty returns true if the hash is nil or zero-length.
func (h Hash) IsEmpty() bool {
	return len(h) == 0
}

// Equal returns true if the hashes are equal.
func (h Hash) Equal(other Hash) bool {
	if len(h) != len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}

// HashFromHex parses a hexadecimal string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return Hash(b), nil
}

// Tx represents an opaque transaction as raw bytes.
type Tx []byte

// String returns the transaction as a hexadecimal string.
func (tx Tx) String() string {
	if len(tx) > 32 {
		return hex.EncodeToString(tx[:32]) + "..."
	}
	return hex.EncodeToString(tx)
}

// Proof is a cryptographic inclusion or exclusion proof attached to a query
// response. Each op carries one serialized commitment proof.
type Proof struct {
	// Ops are the proof operations that can be verified.
	Ops []ProofOp `json:"ops" cramberry:"1"`
}

// ProofOp represents a single operation in a Merkle proof.
type ProofOp struct {
	// Type identifies the proof operation type (e.g., "ics23:iavl").
	Type string `json:"type" cramberry:"1"`

	// Key is the key this operation applies to.
	Key []byte `json:"key" cramberry:"2"`

	// Data contains the serialized proof for this operation.
	Data []byte `json:"data" cramberry:"3"`
}

// Len returns the number of proof ops, tolerating a nil proof.
func (p *Proof) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Ops)
}
