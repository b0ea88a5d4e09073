package router

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/queryberry/types"
)

// envelope gives every payload a struct shape on the wire so that scalars,
// slices and optional values share one encoding.
type envelope[T any] struct {
	Value T `cramberry:"1"`
}

// Encode serializes a handler payload.
func Encode[T any](v T) ([]byte, error) {
	data, err := cramberry.Marshal(envelope[T]{Value: v})
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// MustEncode is like Encode but panics on failure. Use it only for payload
// types whose encoding cannot fail.
func MustEncode[T any](v T) []byte {
	data, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode deserializes a payload produced by Encode.
// Failures wrap types.ErrDecode.
func Decode[T any](data []byte) (T, error) {
	var env envelope[T]
	if err := cramberry.Unmarshal(data, &env); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %T: %v", types.ErrDecode, zero, err)
	}
	return env.Value, nil
}

// Respond encodes v as the data of a successful response.
func Respond[T any](v T) (*EncodedResponseQuery, error) {
	data, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return &EncodedResponseQuery{Data: data}, nil
}

// RespondWithProof is like Respond but attaches proof, which may be nil.
func RespondWithProof[T any](v T, proof *types.Proof) (*EncodedResponseQuery, error) {
	resp, err := Respond(v)
	if err != nil {
		return nil, err
	}
	resp.Proof = proof
	return resp, nil
}

// DecodeResponse decodes the payload of an encoded response into its typed form.
func DecodeResponse[T any](resp *EncodedResponseQuery) (*ResponseQuery[T], error) {
	v, err := Decode[T](resp.Data)
	if err != nil {
		return nil, err
	}
	return &ResponseQuery[T]{
		Data:  v,
		Info:  resp.Info,
		Proof: resp.Proof,
	}, nil
}
