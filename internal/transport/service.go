package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Control is served as imagefeed.v1.Control:
//
//	service Control {
//	  rpc Ping(google.protobuf.Empty) returns (google.protobuf.StringValue);
//	  rpc Stats(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc NextBatch(google.protobuf.Empty) returns (google.protobuf.BytesValue);
//	}
//
// NextBatch carries a wire-encoded batch.
const serviceName = "imagefeed.v1.Control"

type ControlServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	NextBatch(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

var controlDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary("Ping", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error) { return s.Ping(ctx, in) })},
		{MethodName: "Stats", Handler: unary("Stats", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error) { return s.Stats(ctx, in) })},
		{MethodName: "NextBatch", Handler: unary("NextBatch", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error) { return s.NextBatch(ctx, in) })},
	},
	Metadata: "imagefeed/v1/control.proto",
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

type unaryFunc func(s ControlServer, ctx context.Context, in *emptypb.Empty) (any, error)

func unary(name string, call unaryFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlDesc, srv)
}
