package grpc

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server gRPC健康检查服务，供负载均衡探活
type Server struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer 创建gRPC服务器实例，初始状态为 NOT_SERVING
func NewServer(logger *zap.Logger) *Server {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(logger)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(logger)),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &Server{
		server: server,
		health: hs,
		logger: logger,
	}
}

// SetServing 标记服务可用，HTTP 服务就绪后调用
func (s *Server) SetServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Serve 在监听器上提供服务，阻塞直到停止
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// GracefulStop 切换为 NOT_SERVING 后优雅停止
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
	s.logger.Info("grpc health server stopped")
}
