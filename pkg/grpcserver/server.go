package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server is a gRPC server with the standard health service, reflection and
// the logging and recovery interceptors installed.
type Server struct {
	*grpc.Server
	health *health.Server
	name   string
	logger *zap.Logger
}

func New(name string, log *zap.Logger, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(log),
			RecoveryInterceptor(log),
		),
	}, opts...)

	srv := grpc.NewServer(opts...)

	// Checker for kuber
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)

	// Reflection for grpcurl and similar tools
	reflection.Register(srv)

	return &Server{
		Server: srv,
		health: healthServer,
		name:   name,
		logger: log,
	}
}

// Serve marks the service as serving and blocks until the listener fails or
// the server is stopped.
func (s *Server) Serve(listener net.Listener) error {
	s.health.SetServingStatus(s.name, grpc_health_v1.HealthCheckResponse_SERVING)
	s.logger.Info("gRPC server starting", zap.String("addr", listener.Addr().String()))
	return s.Server.Serve(listener)
}

// Shutdown drains in-flight calls and forces a stop once timeout elapses.
func (s *Server) Shutdown(timeout time.Duration) {
	s.health.SetServingStatus(s.name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing stop")
		s.Stop()
		<-stopped
	}
}

func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
		}

		if err != nil {
			fields = append(fields, zap.String("code", status.Code(err).String()), zap.Error(err))
			log.Error("gRPC call failed", fields...)
		} else {
			log.Info("gRPC call", fields...)
		}

		return resp, err
	}
}

func RecoveryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
