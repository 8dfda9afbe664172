// Package grpcapi exposes the contact monitor over gRPC: the two services,
// the results and markers topics as server streams and a client stream for
// joint states.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/banshee-data/contact.monitor/internal/monitor"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "contactmonitor.ContactMonitor"

const (
	modifyEnvironmentMethod   = "/" + ServiceName + "/ModifyEnvironment"
	computeContactsMethod     = "/" + ServiceName + "/ComputeContactResultVector"
	streamContactResultsName  = "StreamContactResults"
	streamContactMarkersName  = "StreamContactMarkers"
	publishJointStatesName    = "PublishJointStates"
	streamContactResultsRoute = "/" + ServiceName + "/" + streamContactResultsName
	streamContactMarkersRoute = "/" + ServiceName + "/" + streamContactMarkersName
	publishJointStatesRoute   = "/" + ServiceName + "/" + publishJointStatesName
)

// StreamRequest opens a topic stream.
type StreamRequest struct{}

// PublishAck closes a joint state stream.
type PublishAck struct {
	Received int `json:"received"`
}

// ContactMonitorServer is the server API for the ContactMonitor service.
type ContactMonitorServer interface {
	ModifyEnvironment(context.Context, *monitor.ModifyEnvironmentRequest) (*monitor.ModifyEnvironmentResponse, error)
	ComputeContactResultVector(context.Context, *monitor.ComputeContactResultVectorRequest) (*monitor.ComputeContactResultVectorResponse, error)
	StreamContactResults(*StreamRequest, grpc.ServerStreamingServer[monitor.ContactResultVector]) error
	StreamContactMarkers(*StreamRequest, grpc.ServerStreamingServer[monitor.MarkerArray]) error
	PublishJointStates(grpc.ClientStreamingServer[monitor.JointState, PublishAck]) error
}

// RegisterContactMonitorServer registers srv on s.
func RegisterContactMonitorServer(s grpc.ServiceRegistrar, srv ContactMonitorServer) {
	s.RegisterService(&serviceDesc, srv)
}

func modifyEnvironmentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(monitor.ModifyEnvironmentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContactMonitorServer).ModifyEnvironment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: modifyEnvironmentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContactMonitorServer).ModifyEnvironment(ctx, req.(*monitor.ModifyEnvironmentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func computeContactsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(monitor.ComputeContactResultVectorRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContactMonitorServer).ComputeContactResultVector(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: computeContactsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContactMonitorServer).ComputeContactResultVector(ctx, req.(*monitor.ComputeContactResultVectorRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamContactResultsHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ContactMonitorServer).StreamContactResults(in, &grpc.GenericServerStream[StreamRequest, monitor.ContactResultVector]{ServerStream: stream})
}

func streamContactMarkersHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ContactMonitorServer).StreamContactMarkers(in, &grpc.GenericServerStream[StreamRequest, monitor.MarkerArray]{ServerStream: stream})
}

func publishJointStatesHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ContactMonitorServer).PublishJointStates(&grpc.GenericServerStream[monitor.JointState, PublishAck]{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ContactMonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ModifyEnvironment", Handler: modifyEnvironmentHandler},
		{MethodName: "ComputeContactResultVector", Handler: computeContactsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: streamContactResultsName, Handler: streamContactResultsHandler, ServerStreams: true},
		{StreamName: streamContactMarkersName, Handler: streamContactMarkersHandler, ServerStreams: true},
		{StreamName: publishJointStatesName, Handler: publishJointStatesHandler, ClientStreams: true},
	},
	Metadata: "contactmonitor.json",
}
