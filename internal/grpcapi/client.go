package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/banshee-data/contact.monitor/internal/monitor"
)

// Client is a ContactMonitor client. Every call uses the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *Client) ModifyEnvironment(ctx context.Context, in *monitor.ModifyEnvironmentRequest, opts ...grpc.CallOption) (*monitor.ModifyEnvironmentResponse, error) {
	out := new(monitor.ModifyEnvironmentResponse)
	if err := c.cc.Invoke(ctx, modifyEnvironmentMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ComputeContactResultVector(ctx context.Context, in *monitor.ComputeContactResultVectorRequest, opts ...grpc.CallOption) (*monitor.ComputeContactResultVectorResponse, error) {
	out := new(monitor.ComputeContactResultVectorResponse)
	if err := c.cc.Invoke(ctx, computeContactsMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StreamContactResults(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[monitor.ContactResultVector], error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], streamContactResultsRoute, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[StreamRequest, monitor.ContactResultVector]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&StreamRequest{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) StreamContactMarkers(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[monitor.MarkerArray], error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[1], streamContactMarkersRoute, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[StreamRequest, monitor.MarkerArray]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&StreamRequest{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// PublishJointStates opens a stream of samples; CloseAndRecv reports how
// many the server accepted.
func (c *Client) PublishJointStates(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[monitor.JointState, PublishAck], error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[2], publishJointStatesRoute, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[monitor.JointState, PublishAck]{ClientStream: stream}, nil
}
