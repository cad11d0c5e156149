package relayd

import (
	"fmt"
	"net"

	"github.com/matheus3301/meshchat/internal/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the service reported by the gRPC health endpoint.
const HealthServiceName = "meshchat.relay"

// HealthServer serves grpc.health.v1 for orchestrators that probe over gRPC.
// It is disabled when no gRPC address is configured.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewHealthServer binds the gRPC health listener, or returns nil when cfg.GRPCAddr is empty.
func NewHealthServer(cfg *config.Relay, logger *zap.Logger) (*HealthServer, error) {
	if cfg.GRPCAddr == "" {
		return nil, nil
	}
	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	hs := health.NewServer()
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		logger:     logger,
	}, nil
}

// Start marks the relay as serving and blocks serving gRPC. Safe on nil receiver.
func (h *HealthServer) Start() error {
	if h == nil {
		return nil
	}
	h.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
	h.logger.Info("grpc health listening", zap.String("addr", h.listener.Addr().String()))
	return h.grpcServer.Serve(h.listener)
}

// Stop reports NOT_SERVING and stops the gRPC server. Safe on nil receiver.
func (h *HealthServer) Stop() {
	if h == nil {
		return
	}
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
}

// Addr returns the bound gRPC address.
func (h *HealthServer) Addr() net.Addr {
	return h.listener.Addr()
}
