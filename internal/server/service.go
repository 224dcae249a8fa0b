package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "whisperbind.v1.Binding"

// Metadata keys carried on RunInference and StreamTranscription calls.
const (
	MetadataContextID = "x-context-id"
	MetadataLanguage  = "x-language"
	MetadataPrompt    = "x-prompt"
	MetadataTranslate = "x-translate"
)

// BindingServer is the server API for the binding service. Messages are
// protobuf well-known types so no generated code is needed.
type BindingServer interface {
	GetVersionInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetCapabilities(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CreateContext(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunInference(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	DestroyContext(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	StreamTranscription(StreamTranscriptionServer) error
}

// StreamTranscriptionServer is the server side of StreamTranscription.
type StreamTranscriptionServer interface {
	Send(*structpb.Struct) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

// ServiceDesc describes the binding service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BindingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetVersionInfo", BindingServer.GetVersionInfo),
		unaryMethod("GetCapabilities", BindingServer.GetCapabilities),
		unaryMethod("CreateContext", BindingServer.CreateContext),
		unaryMethod("RunInference", BindingServer.RunInference),
		unaryMethod("DestroyContext", BindingServer.DestroyContext),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "StreamTranscription",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(BindingServer).StreamTranscription(&streamTranscriptionServer{stream})
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "whisperbind/v1/binding.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv BindingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryMethod[Req, Resp any](name string, call func(BindingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	method := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BindingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BindingServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type streamTranscriptionServer struct {
	grpc.ServerStream
}

func (x *streamTranscriptionServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *streamTranscriptionServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Client is a thin client for the binding service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetVersionInfo(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetVersionInfo"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCapabilities(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetCapabilities"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateContext(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("CreateContext"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RunInference sends samples as float32 little-endian. The context id and
// language travel as metadata on ctx.
func (c *Client) RunInference(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("RunInference"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DestroyContext(ctx context.Context, contextID string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("DestroyContext"), wrapperspb.String(contextID), new(emptypb.Empty), opts...)
}

// StreamTranscriptionClient is the client side of StreamTranscription.
type StreamTranscriptionClient interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

func (c *Client) StreamTranscription(ctx context.Context, opts ...grpc.CallOption) (StreamTranscriptionClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("StreamTranscription"), opts...)
	if err != nil {
		return nil, err
	}
	return &streamTranscriptionClient{stream}, nil
}

type streamTranscriptionClient struct {
	grpc.ClientStream
}

func (x *streamTranscriptionClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *streamTranscriptionClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
