// Package jsonrpc serves rpc.Service over JSON-RPC 2.0 on HTTP and provides
// the matching client transport.
package jsonrpc

import (
	"encoding/json"

	"github.com/blockberries/queryberry/rpc"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpc.RPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// NewResponse creates a successful response.
func NewResponse(id json.RawMessage, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{
		JSONRPC: Version,
		Result:  data,
		ID:      normalizeID(id),
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, err *rpc.RPCError) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   err,
		ID:      normalizeID(id),
	}
}

// BatchRequest is a batch of JSON-RPC requests.
type BatchRequest []Request

// BatchResponse is a batch of JSON-RPC responses.
type BatchResponse []Response

// normalizeID makes an absent id serialize as null.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// hasParams reports whether raw holds params other than an explicit null.
func hasParams(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
