// Package grpcapi exposes the ledger's health over gRPC.  The ledger
// service reports SERVING only while the event hash chain verifies.
package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// LedgerService is the health service name tracking chain integrity.
const LedgerService = "datavault.v1.Ledger"

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{logger: logger, health: health.NewServer()}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	// Unknown until the first verification completes.
	s.health.SetServingStatus(LedgerService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetChainStatus records the outcome of a chain verification.
func (s *Server) SetChainStatus(r types.ChainReport) {
	st := healthpb.HealthCheckResponse_SERVING
	if !r.Verified {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(LedgerService, st)
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"dur", time.Since(start),
	)
	return resp, err
}
