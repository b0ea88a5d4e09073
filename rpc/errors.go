package rpc

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes, plus node-specific codes in the -32000 range.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeTxNotFound        = -32000
	CodeBlockNotFound     = -32001
	CodeInvalidHeight     = -32002
	CodeBroadcastFailed   = -32003
	CodeMethodUnsupported = -32004
	CodeRateLimited       = -32005
	CodeSubscription      = -32006
)

// Common RPC errors.
var (
	ErrParseError        = &RPCError{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest    = &RPCError{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound    = &RPCError{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams     = &RPCError{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrInternalError     = &RPCError{Code: CodeInternalError, Message: "Internal error"}
	ErrTxNotFound        = &RPCError{Code: CodeTxNotFound, Message: "Transaction not found"}
	ErrBlockNotFound     = &RPCError{Code: CodeBlockNotFound, Message: "Block not found"}
	ErrInvalidHeight     = &RPCError{Code: CodeInvalidHeight, Message: "Invalid height"}
	ErrTxBroadcastFailed = &RPCError{Code: CodeBroadcastFailed, Message: "Transaction broadcast failed"}
	ErrMethodUnsupported = &RPCError{Code: CodeMethodUnsupported, Message: "Method not supported by this node"}
	ErrRateLimited       = &RPCError{Code: CodeRateLimited, Message: "Rate limit exceeded"}
	ErrSubscription      = &RPCError{Code: CodeSubscription, Message: "Subscription failed"}
)

// RPCError is an error reported by the node for a consensus-native call.
type RPCError struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is the error message.
	Message string `json:"message"`

	// Data contains additional error data.
	Data string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is matches RPC errors by code, so errors.Is(err, ErrBlockNotFound) holds
// for any block-not-found error regardless of its data.
func (e *RPCError) Is(target error) bool {
	t, ok := target.(*RPCError)
	return ok && t.Code == e.Code
}

// WithData returns a copy of the error with additional data.
func (e *RPCError) WithData(data string) *RPCError {
	return &RPCError{
		Code:    e.Code,
		Message: e.Message,
		Data:    data,
	}
}

// WithDataf is like WithData with a formatted message.
func (e *RPCError) WithDataf(format string, args ...any) *RPCError {
	return e.WithData(fmt.Sprintf(format, args...))
}

// AsRPCError converts err into an RPCError. Errors that are not RPC errors
// become internal errors carrying the error text.
func AsRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return ErrInternalError.WithData(err.Error())
}

// IsRPCError checks whether an error is an RPCError and returns it.
func IsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}
