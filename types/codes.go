package types

import (
	"errors"
	"fmt"
)

// ResultCode is the status code of a served query.
// Code 0 indicates success; all other codes indicate errors.
// Codes 1-99 are reserved for framework use.
type ResultCode uint32

const (
	// CodeOK indicates the query succeeded.
	CodeOK ResultCode = 0

	// CodeUnknownError indicates an unspecified handler error.
	CodeUnknownError ResultCode = 1

	// CodePathNotFound indicates no route matched the query path.
	CodePathNotFound ResultCode = 2

	// CodeInvalidHeight indicates the requested height is not supported.
	CodeInvalidHeight ResultCode = 3

	// CodeProofNotSupported indicates a proof was requested from an endpoint without proofs.
	CodeProofNotSupported ResultCode = 4

	// CodeUnexpectedData indicates request data was sent to a data-less endpoint.
	CodeUnexpectedData ResultCode = 5

	// CodeMissingData indicates required request data was absent.
	CodeMissingData ResultCode = 6

	// CodeInvalidArgument indicates a path argument could not be parsed.
	CodeInvalidArgument ResultCode = 7

	// CodeDecodeFailure indicates request data could not be decoded.
	CodeDecodeFailure ResultCode = 8

	// CodeNotFound indicates the requested resource was not found.
	CodeNotFound ResultCode = 9

	// CodeTxRejected indicates a broadcast transaction was not admitted.
	CodeTxRejected ResultCode = 10
)

// IsOK returns true if the code indicates success.
func (c ResultCode) IsOK() bool {
	return c == CodeOK
}

// String returns a human-readable description of the code.
func (c ResultCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeUnknownError:
		return "UnknownError"
	case CodePathNotFound:
		return "PathNotFound"
	case CodeInvalidHeight:
		return "InvalidHeight"
	case CodeProofNotSupported:
		return "ProofNotSupported"
	case CodeUnexpectedData:
		return "UnexpectedData"
	case CodeMissingData:
		return "MissingData"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeDecodeFailure:
		return "DecodeFailure"
	case CodeNotFound:
		return "NotFound"
	case CodeTxRejected:
		return "TxRejected"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(c))
	}
}

// Sentinel returns the sentinel error a code stands for, or nil when the
// code carries no specific meaning.
func (c ResultCode) Sentinel() error {
	switch c {
	case CodePathNotFound:
		return ErrPathNotFound
	case CodeInvalidHeight:
		return ErrInvalidHeight
	case CodeProofNotSupported:
		return ErrProofNotSupported
	case CodeUnexpectedData:
		return ErrUnexpectedData
	case CodeMissingData:
		return ErrMissingData
	case CodeInvalidArgument:
		return ErrInvalidArgument
	case CodeDecodeFailure:
		return ErrDecode
	case CodeNotFound:
		return ErrKeyNotFound
	default:
		return nil
	}
}

// CodeFor classifies a handler error into the result code sent to remote callers.
func CodeFor(err error) ResultCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrPathNotFound):
		return CodePathNotFound
	case errors.Is(err, ErrInvalidHeight), errors.Is(err, ErrVersionNotFound):
		return CodeInvalidHeight
	case errors.Is(err, ErrProofNotSupported):
		return CodeProofNotSupported
	case errors.Is(err, ErrUnexpectedData):
		return CodeUnexpectedData
	case errors.Is(err, ErrMissingData):
		return CodeMissingData
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrDecode):
		return CodeDecodeFailure
	case errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrBlockNotFound):
		return CodeNotFound
	default:
		return CodeUnknownError
	}
}
