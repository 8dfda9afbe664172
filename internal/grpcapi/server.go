package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/contact.monitor/internal/jointfeed"
	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/timeutil"
	"github.com/banshee-data/contact.monitor/internal/topic"
)

const (
	// maxMsgSize bounds result vectors for densely populated scenes.
	maxMsgSize = 8 * 1024 * 1024
	// shutdownGrace is how long open streams get before a hard stop.
	shutdownGrace = 2 * time.Second
)

// Service is the part of the monitor the gRPC surface calls into.
type Service interface {
	Err() error
	ModifyEnvironment(monitor.ModifyEnvironmentRequest) monitor.ModifyEnvironmentResponse
	ComputeContactResultVector(monitor.ComputeContactResultVectorRequest) monitor.ComputeContactResultVectorResponse
}

var _ Service = (*monitor.ContactMonitor)(nil)

// Server implements ContactMonitorServer over a monitor and its topics.
type Server struct {
	svc     Service
	results *topic.Latched[monitor.ContactResultVector]
	markers *topic.Latched[monitor.MarkerArray]
	joints  jointfeed.Sink
	health  *health.Server
	clock   timeutil.Clock
	logf    func(format string, v ...interface{})
}

var _ ContactMonitorServer = (*Server)(nil)

// NewServer creates a server. markers may be nil when marker publishing is
// off; joints may be nil to refuse joint state streams. clock stamps samples
// that arrive without a timestamp and defaults to the real clock.
func NewServer(svc Service, results *topic.Latched[monitor.ContactResultVector], markers *topic.Latched[monitor.MarkerArray], joints jointfeed.Sink, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		svc:     svc,
		results: results,
		markers: markers,
		joints:  joints,
		health:  health.NewServer(),
		clock:   clock,
		logf:    monitoring.Prefixed("gRPC"),
	}
}

// ModifyEnvironment forwards to the monitor.
func (s *Server) ModifyEnvironment(_ context.Context, req *monitor.ModifyEnvironmentRequest) (*monitor.ModifyEnvironmentResponse, error) {
	resp := s.svc.ModifyEnvironment(*req)
	return &resp, nil
}

// ComputeContactResultVector forwards to the monitor.
func (s *Server) ComputeContactResultVector(_ context.Context, req *monitor.ComputeContactResultVectorRequest) (*monitor.ComputeContactResultVectorResponse, error) {
	resp := s.svc.ComputeContactResultVector(*req)
	return &resp, nil
}

// StreamContactResults sends the latched result vector, then every new one.
func (s *Server) StreamContactResults(_ *StreamRequest, stream grpc.ServerStreamingServer[monitor.ContactResultVector]) error {
	if s.results == nil {
		return status.Error(codes.Unavailable, "contact results are not published")
	}
	return relay(stream.Context(), s.results, stream.Send)
}

// StreamContactMarkers sends marker arrays as they are published.
func (s *Server) StreamContactMarkers(_ *StreamRequest, stream grpc.ServerStreamingServer[monitor.MarkerArray]) error {
	if s.markers == nil {
		return status.Error(codes.Unavailable, "marker publishing is disabled")
	}
	return relay(stream.Context(), s.markers, stream.Send)
}

func relay[T any](ctx context.Context, t *topic.Latched[T], send func(*T) error) error {
	id, ch := t.Subscribe()
	defer t.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			if err := send(&v); err != nil {
				return err
			}
		}
	}
}

// PublishJointStates publishes every received sample on the joint state
// topic and acknowledges the count when the client closes the stream.
func (s *Server) PublishJointStates(stream grpc.ClientStreamingServer[monitor.JointState, PublishAck]) error {
	if s.joints == nil {
		return status.Error(codes.Unimplemented, "joint state input is disabled")
	}
	n := 0
	for {
		js, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return stream.SendAndClose(&PublishAck{Received: n})
		}
		if err != nil {
			return err
		}
		if len(js.Names) != len(js.Positions) {
			return status.Errorf(codes.InvalidArgument, "sample %d has %d names and %d positions", n, len(js.Names), len(js.Positions))
		}
		if js.Stamp.IsZero() {
			js.Stamp = s.clock.Now()
		}
		s.joints.Publish(*js)
		n++
	}
}

// GRPCServer builds a grpc.Server with the contact monitor and health
// services registered.
func (s *Server) GRPCServer() *grpc.Server {
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(s.unaryLogger),
		grpc.ChainStreamInterceptor(s.streamLogger),
	)
	RegisterContactMonitorServer(gs, s)
	healthpb.RegisterHealthServer(gs, s.health)

	st := healthpb.HealthCheckResponse_SERVING
	if s.svc.Err() != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return gs
}

// Serve serves on lis until ctx is done, then stops gracefully. Streams still
// open after shutdownGrace are cut.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := s.GRPCServer()
	stopped := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(stopped)
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			gs.Stop()
			<-done
		}
	})

	s.logf("listening on %s", lis.Addr())
	err := gs.Serve(lis)
	if stop() {
		// Serve failed on its own; the shutdown hook never ran.
		gs.Stop()
	} else {
		<-stopped
	}
	if err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) unaryLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logf("%s %s %s", info.FullMethod, status.Code(err), time.Since(start))
	return resp, err
}

func (s *Server) streamLogger(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	s.logf("%s opened", info.FullMethod)
	err := handler(srv, ss)
	s.logf("%s closed %s after %s", info.FullMethod, status.Code(err), time.Since(start))
	return err
}
