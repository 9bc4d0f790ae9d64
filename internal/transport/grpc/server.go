package grpcx

import (
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthv1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Server — grpc-срез сервиса. Пока наружу торчит только health
// (им пользуются балансировщик и gateway); доменные RPC доедут
// вместе с protobuf-контрактом.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(requestTimeout time.Duration) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(requestTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	hs := health.NewServer()
	healthv1.RegisterHealthServer(gs, hs)

	return &Server{grpc: gs, health: hs}
}

// SetServing переключает health-статус всего сервиса.
func (s *Server) SetServing(ok bool) {
	st := healthv1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthv1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
