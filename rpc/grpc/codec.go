// Package grpc serves rpc.Service over gRPC and provides the matching
// client transport. Messages are the rpc request and response types
// themselves, serialized with cramberry; no protobuf code generation is
// involved.
package grpc

import (
	"fmt"
	"reflect"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

// CodecName is the name of the Cramberry codec for gRPC. Clients send it as
// the content subtype.
const CodecName = "cramberry"

// Codec implements the gRPC encoding.Codec interface using Cramberry
// for message serialization instead of the default Protocol Buffers.
type Codec struct {
	options cramberry.Options
}

// NewCodec creates a Cramberry codec with default options.
func NewCodec() *Codec {
	return &Codec{options: cramberry.DefaultOptions}
}

// Marshal serializes a message to Cramberry format.
func (c *Codec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := cramberry.MarshalWithOptions(v, c.options)
	if err != nil {
		return nil, fmt.Errorf("cramberry marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal deserializes a message from Cramberry format. Empty input leaves
// v untouched, which is how empty request structs travel.
func (c *Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("unmarshal target must be a non-nil pointer, got %T", v)
	}
	if err := cramberry.UnmarshalWithOptions(data, v, c.options); err != nil {
		return fmt.Errorf("cramberry unmarshal %T: %w", v, err)
	}
	return nil
}

// Name returns the name of the codec.
func (c *Codec) Name() string {
	return CodecName
}

func init() {
	// Servers look codecs up by content subtype.
	encoding.RegisterCodec(NewCodec())
}
