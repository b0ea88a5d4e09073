package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/blockberries/queryberry/rpc"
)

// ServiceName is the gRPC service every node registers. Each rpc method is
// a unary method of the same name, e.g. "/queryberry.Node/abci_query".
const ServiceName = "queryberry.Node"

// StreamSubscribe is the server-streaming method delivering bus events.
const StreamSubscribe = "subscribe"

// FullMethod returns the gRPC method path of an rpc method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SubscribeRequest opens an event subscription.
type SubscribeRequest struct {
	Query string `cramberry:"1"`
}

// nodeServer is implemented by Server; service handlers dispatch to it.
type nodeServer interface {
	call(ctx context.Context, method string, req rpc.Request) (any, error)
	subscribe(req *SubscribeRequest, stream grpc.ServerStream) error
}

// serviceDesc describes the node service. Methods are derived from the rpc
// registry, so every rpc method is served with its typed request.
var serviceDesc = newServiceDesc()

func newServiceDesc() grpc.ServiceDesc {
	methods := rpc.Methods()
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*nodeServer)(nil),
		Methods:     make([]grpc.MethodDesc, 0, len(methods)),
		Streams: []grpc.StreamDesc{{
			StreamName:    StreamSubscribe,
			Handler:       subscribeHandler,
			ServerStreams: true,
		}},
		Metadata: "queryberry/rpc",
	}
	for _, method := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: method,
			Handler:    unaryHandler(method),
		})
	}
	return desc
}

func unaryHandler(method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		resp, err := invoke(ctx, srv.(nodeServer), method, dec, interceptor)
		if err != nil {
			md, st := toStatus(err)
			if md != nil {
				_ = grpc.SetTrailer(ctx, md)
			}
			return nil, st
		}
		return resp, nil
	}
}

func invoke(ctx context.Context, srv nodeServer, method string, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req, err := rpc.NewRequest(method)
	if err != nil {
		return nil, err
	}
	if err := dec(req); err != nil {
		return nil, rpc.ErrInvalidParams.WithData(err.Error())
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.call(ctx, method, req.(rpc.Request))
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod(method),
	}
	return interceptor(ctx, req, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	err := stream.RecvMsg(req)
	if err != nil {
		err = rpc.ErrInvalidParams.WithData(err.Error())
	} else {
		err = srv.(nodeServer).subscribe(req, stream)
	}
	if err == nil {
		return nil
	}
	md, st := toStatus(err)
	if md != nil {
		stream.SetTrailer(md)
	}
	return st
}
