package query

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName           = "analytics.v1.QueryService"
	GetSnapshotFullMethod = "/" + ServiceName + "/GetSnapshot"
)

// QueryServer is the server API of analytics.v1.QueryService. Requests and
// responses are google.protobuf.Struct documents.
type QueryServer interface {
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&QueryServiceDesc, srv)
}

var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSnapshot",
			Handler:    getSnapshotHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetSnapshotFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryServer).GetSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls analytics.v1.QueryService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetSnapshotFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
