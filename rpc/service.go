// Package rpc exposes a datafeed.Feed to charting hosts over gRPC. Requests
// and replies are google.protobuf.Struct messages, so the service needs no
// generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "barfeed.Datafeed"

const (
	readyMethod         = "/" + ServiceName + "/Ready"
	searchSymbolsMethod = "/" + ServiceName + "/SearchSymbols"
	resolveSymbolMethod = "/" + ServiceName + "/ResolveSymbol"
	getBarsMethod       = "/" + ServiceName + "/GetBars"
	subscribeBarsMethod = "/" + ServiceName + "/SubscribeBars"
)

// DatafeedServer is the server API of the barfeed.Datafeed service.
type DatafeedServer interface {
	Ready(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchSymbols(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveSymbol(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBars(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubscribeBars(*structpb.Struct, BarStreamServer) error
}

// BarStreamServer is the server side of a SubscribeBars stream.
type BarStreamServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type barStreamServer struct {
	grpc.ServerStream
}

func (s *barStreamServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// RegisterDatafeedServer registers srv on s.
func RegisterDatafeedServer(s grpc.ServiceRegistrar, srv DatafeedServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(method string, call func(DatafeedServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DatafeedServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DatafeedServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeBarsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DatafeedServer).SubscribeBars(in, &barStreamServer{stream})
}

// ServiceDesc describes the barfeed.Datafeed service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DatafeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ready",
			Handler:    unaryHandler(readyMethod, DatafeedServer.Ready),
		},
		{
			MethodName: "SearchSymbols",
			Handler:    unaryHandler(searchSymbolsMethod, DatafeedServer.SearchSymbols),
		},
		{
			MethodName: "ResolveSymbol",
			Handler:    unaryHandler(resolveSymbolMethod, DatafeedServer.ResolveSymbol),
		},
		{
			MethodName: "GetBars",
			Handler:    unaryHandler(getBarsMethod, DatafeedServer.GetBars),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeBars",
			Handler:       subscribeBarsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "barfeed/datafeed",
}
