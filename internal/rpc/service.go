package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName    = "meshcop.Dataset"
	announceMethod = "/" + serviceName + "/Announce"
	getMethod      = "/" + serviceName + "/Get"
)

// DatasetServer is the server API for the dataset service.
type DatasetServer interface {
	// Announce offers the caller's dataset to this node.
	Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResponse, error)
	// Get returns this node's dataset of the requested kind.
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
}

// DatasetClient is the client API for the dataset service.
type DatasetClient interface {
	Announce(ctx context.Context, req *AnnounceRequest, opts ...grpc.CallOption) (*AnnounceResponse, error)
	Get(ctx context.Context, req *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
}

var datasetServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DatasetServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Announce", Handler: announceHandler},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meshcop/dataset",
}

// RegisterDatasetServer registers srv with s.
func RegisterDatasetServer(s grpc.ServiceRegistrar, srv DatasetServer) {
	s.RegisterService(&datasetServiceDesc, srv)
}

func announceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AnnounceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DatasetServer).Announce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: announceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DatasetServer).Announce(ctx, req.(*AnnounceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DatasetServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DatasetServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type datasetClient struct {
	cc grpc.ClientConnInterface
}

// NewDatasetClient creates a client over cc.
func NewDatasetClient(cc grpc.ClientConnInterface) DatasetClient {
	return &datasetClient{cc: cc}
}

func (c *datasetClient) Announce(ctx context.Context, req *AnnounceRequest, opts ...grpc.CallOption) (*AnnounceResponse, error) {
	out := new(AnnounceResponse)
	if err := c.cc.Invoke(ctx, announceMethod, req, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *datasetClient) Get(ctx context.Context, req *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.cc.Invoke(ctx, getMethod, req, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
