package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"imagefeed/internal/logging"
	"imagefeed/internal/pipeline"
)

// Backend is what the control service exposes. NextBatch returns a
// wire-encoded batch.
type Backend interface {
	NextBatch(ctx context.Context) ([]byte, error)
	Stats() pipeline.Stats
}

type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
}

func StartServer(port int, b Backend) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewServer(lis, b), nil
}

// NewServer registers the control and health services on lis. Serve must
// be called to accept connections.
func NewServer(lis net.Listener, b Backend) *Server {
	s := &Server{
		grpc:   grpc.NewServer(grpc.UnaryInterceptor(logUnary)),
		lis:    lis,
		health: health.NewServer(),
	}
	RegisterControlServer(s.grpc, &control{backend: b})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	logging.Component("transport").Info("control server listening", "addr", s.lis.Addr().String())
	if err := s.grpc.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	logging.Component("transport").Debug("control call", "method", info.FullMethod, "took", time.Since(start), "code", status.Code(err).String())
	return resp, err
}

type control struct {
	backend Backend
}

func (c *control) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("pong"), nil
}

func (c *control) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := c.backend.Stats()
	return structpb.NewStruct(map[string]any{
		"id":             st.ID,
		"state":          st.State.String(),
		"batches":        st.Batches,
		"failed_batches": st.FailedBatches,
		"samples":        st.Samples,
		"sample_errors":  st.SampleErrors,
		"retries":        st.Retries,
		"records_read":   st.RecordsRead,
	})
}

func (c *control) NextBatch(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	b, err := c.backend.NextBatch(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func toStatus(err error) error {
	var be *pipeline.BatchError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, pipeline.ErrNotRunning):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, pipeline.ErrSourceExhausted):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.As(err, &be):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, pipeline.ErrConfig):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
