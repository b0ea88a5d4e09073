package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/queryberry/events"
	"github.com/blockberries/queryberry/logging"
	"github.com/blockberries/queryberry/rpc"
	"github.com/blockberries/queryberry/types"
)

var subscribeDesc = &grpc.StreamDesc{
	StreamName:    StreamSubscribe,
	ServerStreams: true,
}

// Client calls a node's gRPC service. It implements the transport used by
// client.Remote and is safe for concurrent use.
type Client struct {
	cc     *grpc.ClientConn
	apiKey string
	logger *logging.Logger
}

type clientOptions struct {
	apiKey   string
	dialOpts []grpc.DialOption
	logger   *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithAPIKey sends key as a bearer token on every call.
func WithAPIKey(key string) ClientOption {
	return func(o *clientOptions) {
		o.apiKey = key
	}
}

// WithDialOptions adds gRPC dial options. Without transport credentials the
// connection is insecure.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(o *clientOptions) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *logging.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// Dial creates a client of the node at target. The connection is
// established lazily on the first call.
func Dial(target string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(NewCodec())),
	}, o.dialOpts...)

	target = strings.TrimPrefix(target, "tcp://")
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client: dial %s: %w", target, err)
	}
	return &Client{
		cc:     cc,
		apiKey: o.apiKey,
		logger: o.logger.WithComponent("grpc-client"),
	}, nil
}

// Call invokes method with params and decodes the result into result.
// Either may be nil; an empty request or a discarded response is used.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	if params == nil || result == nil {
		empty, err := rpc.NewRequest(method)
		if err != nil {
			return err
		}
		if params == nil {
			params = empty
		}
		if result == nil {
			result = empty.NewResponse()
		}
	}

	var trailer metadata.MD
	err := c.cc.Invoke(c.outgoing(ctx), FullMethod(method), params, result, grpc.Trailer(&trailer))
	if err != nil {
		return c.callError(ctx, err, trailer)
	}
	return nil
}

// Subscribe opens an event stream for query. The channel is closed when
// ctx is canceled, the node ends the stream or the client is closed.
// Rejected subscriptions are reported before the channel is returned.
func (c *Client) Subscribe(ctx context.Context, query string) (<-chan events.Event, error) {
	stream, err := c.cc.NewStream(c.outgoing(ctx), subscribeDesc, FullMethod(StreamSubscribe))
	if err != nil {
		return nil, c.callError(ctx, err, nil)
	}
	if err := stream.SendMsg(&SubscribeRequest{Query: query}); err != nil {
		return nil, c.streamError(ctx, stream, err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, c.streamError(ctx, stream, err)
	}

	header, err := stream.Header()
	if err != nil {
		return nil, c.streamError(ctx, stream, err)
	}
	if len(header.Get(headerSubscribed)) == 0 {
		// Trailers-only response: the subscription was rejected.
		err := stream.RecvMsg(new(events.Event))
		if err == nil || errors.Is(err, io.EOF) {
			err = rpc.ErrSubscription.WithData("stream ended before subscribing")
		}
		return nil, c.streamError(ctx, stream, err)
	}

	out := make(chan events.Event)
	go func() {
		defer close(out)
		for {
			ev := new(events.Event)
			if err := stream.RecvMsg(ev); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.Debug("subscription ended", logging.Error(c.streamError(ctx, stream, err)))
				}
				return
			}
			select {
			case out <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	ctx = outgoingTrace(ctx)
	if c.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, authorizationKey, bearerPrefix+c.apiKey)
}

func (c *Client) streamError(ctx context.Context, stream grpc.ClientStream, err error) error {
	if _, ok := rpc.IsRPCError(err); ok {
		return err
	}
	return c.callError(ctx, err, stream.Trailer())
}

// callError rebuilds node errors from the trailer and classifies the rest.
func (c *Client) callError(ctx context.Context, err error, trailer metadata.MD) error {
	if rpcErr, ok := fromStatus(trailer); ok {
		return rpcErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	st, ok := status.FromError(err)
	if ok && st.Code() == codes.Internal && strings.Contains(st.Message(), "unmarshal") {
		// Client-side codec failures surface as Internal without a trailer.
		return fmt.Errorf("%w: %s", types.ErrDecode, st.Message())
	}
	return err
}
