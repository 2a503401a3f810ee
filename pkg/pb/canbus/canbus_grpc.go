package canbus

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	methodGetServiceState   = "getServiceState"
	methodStreamRaw         = "streamCanbusMessages"
	methodSendCanbusMessage = "sendCanbusMessage"

	CanbusService_GetServiceState_FullMethodName   = "/" + ServiceName + "/" + methodGetServiceState
	CanbusService_StreamRaw_FullMethodName         = "/" + ServiceName + "/" + methodStreamRaw
	CanbusService_SendCanbusMessage_FullMethodName = "/" + ServiceName + "/" + methodSendCanbusMessage
)

// CanbusServiceClient is the client API for CanbusService.
type CanbusServiceClient interface {
	GetServiceState(ctx context.Context, in *GetServiceStateRequest, opts ...grpc.CallOption) (*GetServiceStateReply, error)
	StreamRaw(ctx context.Context, in *StreamRawRequest, opts ...grpc.CallOption) (CanbusService_StreamRawClient, error)
	SendCanbusMessage(ctx context.Context, in *SendCanbusMessageRequest, opts ...grpc.CallOption) (*SendCanbusMessageReply, error)
}

type canbusServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCanbusServiceClient(cc grpc.ClientConnInterface) CanbusServiceClient {
	return &canbusServiceClient{cc}
}

func (c *canbusServiceClient) GetServiceState(ctx context.Context, in *GetServiceStateRequest, opts ...grpc.CallOption) (*GetServiceStateReply, error) {
	out := dynamicpb.NewMessage(getServiceStateReplyDesc)
	if err := c.cc.Invoke(ctx, CanbusService_GetServiceState_FullMethodName, in.toProto(), out, opts...); err != nil {
		return nil, err
	}
	return getServiceStateReplyFromProto(out), nil
}

func (c *canbusServiceClient) StreamRaw(ctx context.Context, in *StreamRawRequest, opts ...grpc.CallOption) (CanbusService_StreamRawClient, error) {
	stream, err := c.cc.NewStream(ctx, &CanbusService_ServiceDesc.Streams[0], CanbusService_StreamRaw_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &canbusServiceStreamRawClient{stream}
	if err := x.ClientStream.SendMsg(in.toProto()); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *canbusServiceClient) SendCanbusMessage(ctx context.Context, in *SendCanbusMessageRequest, opts ...grpc.CallOption) (*SendCanbusMessageReply, error) {
	out := dynamicpb.NewMessage(sendCanbusMessageReplyDesc)
	if err := c.cc.Invoke(ctx, CanbusService_SendCanbusMessage_FullMethodName, in.toProto(), out, opts...); err != nil {
		return nil, err
	}
	return sendCanbusMessageReplyFromProto(out), nil
}

type CanbusService_StreamRawClient interface {
	Recv() (*StreamCanbusReply, error)
	grpc.ClientStream
}

type canbusServiceStreamRawClient struct {
	grpc.ClientStream
}

func (x *canbusServiceStreamRawClient) Recv() (*StreamCanbusReply, error) {
	m := dynamicpb.NewMessage(streamCanbusReplyDesc)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return streamCanbusReplyFromProto(m), nil
}

// CanbusServiceServer is the server API for CanbusService.
type CanbusServiceServer interface {
	GetServiceState(context.Context, *GetServiceStateRequest) (*GetServiceStateReply, error)
	StreamRaw(*StreamRawRequest, CanbusService_StreamRawServer) error
	SendCanbusMessage(context.Context, *SendCanbusMessageRequest) (*SendCanbusMessageReply, error)
}

// UnimplementedCanbusServiceServer can be embedded to have forward compatible
// implementations.
type UnimplementedCanbusServiceServer struct{}

func (UnimplementedCanbusServiceServer) GetServiceState(context.Context, *GetServiceStateRequest) (*GetServiceStateReply, error) {
	return nil, status.Errorf(codes.Unimplemented, "method getServiceState not implemented")
}

func (UnimplementedCanbusServiceServer) StreamRaw(*StreamRawRequest, CanbusService_StreamRawServer) error {
	return status.Errorf(codes.Unimplemented, "method streamCanbusMessages not implemented")
}

func (UnimplementedCanbusServiceServer) SendCanbusMessage(context.Context, *SendCanbusMessageRequest) (*SendCanbusMessageReply, error) {
	return nil, status.Errorf(codes.Unimplemented, "method sendCanbusMessage not implemented")
}

func RegisterCanbusServiceServer(s grpc.ServiceRegistrar, srv CanbusServiceServer) {
	s.RegisterService(&CanbusService_ServiceDesc, srv)
}

func _CanbusService_GetServiceState_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := dynamicpb.NewMessage(getServiceStateRequestDesc)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		reply, err := srv.(CanbusServiceServer).GetServiceState(ctx, &GetServiceStateRequest{})
		if err != nil {
			return nil, err
		}
		return reply.toProto(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CanbusService_GetServiceState_FullMethodName,
	}
	return interceptor(ctx, in, info, handler)
}

func _CanbusService_SendCanbusMessage_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := dynamicpb.NewMessage(sendCanbusMessageRequestDesc)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		reply, err := srv.(CanbusServiceServer).SendCanbusMessage(ctx, sendCanbusMessageRequestFromProto(in))
		if err != nil {
			return nil, err
		}
		return reply.toProto(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CanbusService_SendCanbusMessage_FullMethodName,
	}
	return interceptor(ctx, in, info, handler)
}

func _CanbusService_StreamRaw_Handler(srv any, stream grpc.ServerStream) error {
	in := dynamicpb.NewMessage(streamRawRequestDesc)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CanbusServiceServer).StreamRaw(streamRawRequestFromProto(in), &canbusServiceStreamRawServer{stream})
}

type CanbusService_StreamRawServer interface {
	Send(*StreamCanbusReply) error
	grpc.ServerStream
}

type canbusServiceStreamRawServer struct {
	grpc.ServerStream
}

func (x *canbusServiceStreamRawServer) Send(m *StreamCanbusReply) error {
	return x.ServerStream.SendMsg(m.toProto())
}

// CanbusService_ServiceDesc is the grpc.ServiceDesc for CanbusService.
var CanbusService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CanbusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodGetServiceState,
			Handler:    _CanbusService_GetServiceState_Handler,
		},
		{
			MethodName: methodSendCanbusMessage,
			Handler:    _CanbusService_SendCanbusMessage_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodStreamRaw,
			Handler:       _CanbusService_StreamRaw_Handler,
			ServerStreams: true,
		},
	},
	Metadata: fileName,
}
