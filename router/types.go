// Package router resolves hierarchical query paths to read-only handlers.
//
// A Router is an immutable tree built once at init time. Each node is either
// a sub-router mounted under a prefix or a leaf handler bound to a prefix.
// Independently developed subtrees (the shell, the validity predicates)
// expose their own *Router and are composed by the root without the root
// knowing their internals.
//
// Dispatch is synchronous and performs no I/O of its own; every suspension
// point lives in the client layer.
package router

import (
	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/types"
)

// RequestQuery is the transport-independent query envelope.
// Build it completely before dispatch; it is never mutated afterwards.
type RequestQuery struct {
	// Path is the '/'-delimited endpoint path, e.g. "shell/epoch".
	Path string

	// Data is the handler-specific request payload.
	Data []byte

	// Height is the requested height; 0 means the latest committed height.
	Height types.Height

	// Prove requests a proof to accompany the response.
	Prove bool
}

// EncodedResponseQuery is a response whose data is still in its
// handler-specific encoding.
type EncodedResponseQuery struct {
	// Data is the encoded response payload.
	Data []byte

	// Info is a diagnostic string, empty on success.
	Info string

	// Proof is present only when requested and supported by the endpoint.
	Proof *types.Proof
}

// ResponseQuery is a decoded response carrying a typed payload.
type ResponseQuery[T any] struct {
	Data  T
	Info  string
	Proof *types.Proof
}

// Storage is the read view of ledger state a handler may consult.
// Implementations must serve every call from an immutable committed
// version so a single dispatch never observes a concurrent commit.
type Storage interface {
	// LastBlockHeight returns the last committed block height.
	LastBlockHeight() types.Height

	// LastBlock returns metadata of the last committed block,
	// or false before the first commit.
	LastBlock() (types.LastBlock, bool)

	// Get returns the value stored at key as of height, or nil if absent.
	// Height 0 reads the latest committed version.
	Get(key []byte, height types.Height) ([]byte, error)

	// Has reports whether key exists as of height.
	Has(key []byte, height types.Height) (bool, error)

	// IteratePrefix calls fn for every key with the given prefix as of height,
	// in ascending key order, until fn returns false.
	IteratePrefix(prefix []byte, height types.Height, fn func(key, value []byte) bool) error

	// GetProof returns an existence or non-existence proof for key as of height.
	GetProof(key []byte, height types.Height) (*types.Proof, error)
}

// RequestCtx is the per-request execution context handed to every handler.
// It borrows its collaborators and must not outlive the dispatch that
// created it.
type RequestCtx struct {
	// Storage is the ledger read view.
	Storage Storage

	// EventLog gives access to recent ledger events.
	EventLog events.Reader

	// VPWasmCache and TxWasmCache are opaque compilation cache handles.
	// They are only set when dispatching in-process; the remote path
	// never constructs them.
	VPWasmCache any
	TxWasmCache any

	// ReadPastHeightLimit bounds how many blocks behind the last committed
	// height a historical read may reach. Zero means unlimited.
	ReadPastHeightLimit uint64
}

// NewRequestCtx creates a request context over the given collaborators.
// The storage is wrapped in a Snapshot for the lifetime of the request.
func NewRequestCtx(storage Storage, eventLog events.Reader) RequestCtx {
	return RequestCtx{
		Storage:  Snapshot(storage),
		EventLog: eventLog,
	}
}
