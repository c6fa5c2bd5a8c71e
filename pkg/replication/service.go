package replication

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// serviceName and methodName match what protoc-gen-go-grpc would emit from
// a replication.proto declaring "service Replication { rpc StreamSync
// (stream StreamSyncRequest) returns (stream StreamSyncResponse); }" — kept
// hand-written here since no protoc toolchain runs in this build (see
// codec.go).
const (
	serviceName    = "replication.Replication"
	streamSyncName = "/replication.Replication/StreamSync"
)

// ReplicationServer is the server-side contract for the StreamSync RPC.
type ReplicationServer interface {
	StreamSync(Replication_StreamSyncServer) error
}

// UnimplementedReplicationServer embeds into server types that only need
// StreamSync, for forward compatibility if more methods are added later.
type UnimplementedReplicationServer struct{}

func (UnimplementedReplicationServer) StreamSync(Replication_StreamSyncServer) error {
	return status.Errorf(codes.Unimplemented, "method StreamSync not implemented")
}

// Replication_StreamSyncServer is the server-side stream handle: Send
// pushes a response message, Recv blocks for the next request message.
type Replication_StreamSyncServer interface {
	Send(*StreamSyncResponse) error
	Recv() (*StreamSyncRequest, error)
	grpc.ServerStream
}

type replicationStreamSyncServer struct {
	grpc.ServerStream
}

func (x *replicationStreamSyncServer) Send(m *StreamSyncResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *replicationStreamSyncServer) Recv() (*StreamSyncRequest, error) {
	m := new(StreamSyncRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Replication_StreamSync_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplicationServer).StreamSync(&replicationStreamSyncServer{stream})
}

// ReplicationServiceDesc registers StreamSync as a bidirectional-streaming
// method, the way protoc-gen-go-grpc would generate it.
var ReplicationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReplicationServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSync",
			Handler:       _Replication_StreamSync_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "replication.proto",
}

// RegisterReplicationServer attaches srv to s, the way the generated
// RegisterReplicationServer function would.
func RegisterReplicationServer(s grpc.ServiceRegistrar, srv ReplicationServer) {
	s.RegisterService(&ReplicationServiceDesc, srv)
}

// ReplicationClient is the client-side contract for the StreamSync RPC.
type ReplicationClient interface {
	StreamSync(ctx context.Context, opts ...grpc.CallOption) (Replication_StreamSyncClient, error)
}

type replicationClient struct {
	cc grpc.ClientConnInterface
}

// NewReplicationClient wraps cc, the way the generated constructor would.
func NewReplicationClient(cc grpc.ClientConnInterface) ReplicationClient {
	return &replicationClient{cc}
}

func (c *replicationClient) StreamSync(ctx context.Context, opts ...grpc.CallOption) (Replication_StreamSyncClient, error) {
	stream, err := c.cc.NewStream(ctx, &ReplicationServiceDesc.Streams[0], streamSyncName, opts...)
	if err != nil {
		return nil, err
	}
	return &replicationStreamSyncClient{stream}, nil
}

// Replication_StreamSyncClient is the client-side stream handle.
type Replication_StreamSyncClient interface {
	Send(*StreamSyncRequest) error
	Recv() (*StreamSyncResponse, error)
	grpc.ClientStream
}

type replicationStreamSyncClient struct {
	grpc.ClientStream
}

func (x *replicationStreamSyncClient) Send(m *StreamSyncRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *replicationStreamSyncClient) Recv() (*StreamSyncResponse, error) {
	m := new(StreamSyncResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
