package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified service name used in the gRPC method
// path, standing in for a protoc-generated package.Service name.
const ServiceName = "slamstream.relay.Relay"

// relayServer is the marker interface a protoc-generated _grpc.pb.go would
// normally name RelayServer; grpc.Server.RegisterService type-asserts the
// registered implementation against it via reflection, so it must be an
// interface even though every handler below dispatches with a concrete
// *Server type assertion rather than calling through it.
type relayServer interface {
	isRelayServer()
}

// isRelayServer makes *Server satisfy relayServer.
func (*Server) isRelayServer() {}

// ServiceDesc is the hand-written equivalent of a protoc-generated
// *_grpc.pb.go's ServiceDesc: it binds method names to handler functions
// against the Server type (server.go), the same shape grpc.RegisterXxxServer
// would produce, but built by hand. Grounded on the teacher's
// inprocgrpc.Channel.RegisterService/grpcutil method lookup, which also
// dispatches against a *grpc.ServiceDesc rather than calling generated
// interface methods directly.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*relayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetSession", Handler: setSessionHandler},
		{MethodName: "GetSession", Handler: getSessionHandler},
		{MethodName: "SyncStatus", Handler: syncStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "IngestStream",
			Handler:       ingestStreamHandler,
			ClientStreams: true,
		},
		{
			StreamName:    "GetSpecificChunks",
			Handler:       getSpecificChunksHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "slamstream/relay.proto",
}

func setSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SessionInfo)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).setSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/SetSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).setSession(ctx, req.(*SessionInfo))
	}
	return interceptor(ctx, in, info, handler)
}

func getSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).getSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).getSession(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func syncStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).syncStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/SyncStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).syncStatus(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func ingestStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).ingestStream(stream)
}

func getSpecificChunksHandler(srv any, stream grpc.ServerStream) error {
	in := new(ChunkRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*Server).getSpecificChunks(in, stream)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*Server).subscribe(in, stream)
}
