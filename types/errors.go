package types

import (
	"errors"
	"fmt"
)

// Query routing errors.
var (
	// ErrPathNotFound is returned when no registered route matches a query path.
	ErrPathNotFound = errors.New("query path not found")

	// ErrInvalidHeight is returned when a height is unsupported by the endpoint
	// or cannot be represented by the transport.
	ErrInvalidHeight = errors.New("invalid height")

	// ErrProofNotSupported is returned when a proof is requested from an
	// endpoint whose data has no Merkle structure.
	ErrProofNotSupported = errors.New("proof not supported")

	// ErrUnexpectedData is returned when request data is attached to an
	// endpoint that takes no arguments.
	ErrUnexpectedData = errors.New("unexpected request data")

	// ErrMissingData is returned when an endpoint requires request data and
	// none was attached.
	ErrMissingData = errors.New("missing request data")

	// ErrInvalidArgument is returned when a path argument cannot be parsed.
	ErrInvalidArgument = errors.New("invalid path argument")
)

// Client and transport errors.
var (
	// ErrDecode is returned when response bytes do not match the expected schema.
	ErrDecode = errors.New("decode failure")

	// ErrTransport is returned for connection-level failures.
	ErrTransport = errors.New("transport failure")

	// ErrPerformUnsupported is returned by clients that cannot serve
	// consensus-native requests.
	ErrPerformUnsupported = errors.New("perform not supported by this client")
)

// State-related errors.
var (
	// ErrKeyNotFound is returned when a key cannot be found in the state store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrVersionNotFound is returned when a requested state version is not retained.
	ErrVersionNotFound = errors.New("state version not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidProof is returned when a merkle proof is invalid.
	ErrInvalidProof = errors.New("invalid proof")
)

// Block-related errors.
var (
	// ErrBlockNotFound is returned when a block cannot be found.
	ErrBlockNotFound = errors.New("block not found")

	// ErrBlockAlreadyExists is returned when attempting to store a block that already exists.
	ErrBlockAlreadyExists = errors.New("block already exists")
)

// Transaction-related errors.
var (
	// ErrInvalidTx is returned when a transaction is malformed.
	ErrInvalidTx = errors.New("invalid transaction")

	// ErrTxTooLarge is returned when a transaction exceeds the size limit.
	ErrTxTooLarge = errors.New("transaction too large")

	// ErrTxAlreadyExists is returned when a transaction is already pending.
	ErrTxAlreadyExists = errors.New("transaction already exists")

	// ErrTxNotFound is returned when a transaction cannot be found.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrMempoolFull is returned when the mempool cannot accept more transactions.
	ErrMempoolFull = errors.New("mempool is full")

	// ErrNoTxValidator is returned when no transaction validator is configured.
	ErrNoTxValidator = errors.New("no transaction validator configured")
)

// QueryError is a protocol-level failure reported by a queried node:
// a non-OK result code together with the node's info string.
type QueryError struct {
	Info string
	Code ResultCode
}

// NewQueryError creates a new QueryError.
func NewQueryError(info string, code ResultCode) *QueryError {
	return &QueryError{Info: info, Code: code}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed with code %d (%s): %s", uint32(e.Code), e.Code, e.Info)
}

// Unwrap maps the result code back to the sentinel error it was produced
// from, so callers can use errors.Is against local and remote clients alike.
func (e *QueryError) Unwrap() error {
	return e.Code.Sentinel()
}

// IsQueryError checks whether an error is a QueryError and returns it.
func IsQueryError(err error) (*QueryError, bool) {
	var q *QueryError
	if errors.As(err, &q) {
		return q, true
	}
	return nil, false
}
