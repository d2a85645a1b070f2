package server

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the chat API.
const ServiceName = "travelmem.Chat"

// Health is a gRPC server carrying the standard health service. It reports
// whether the chat API is serving, for orchestrators that probe over gRPC.
type Health struct {
	server *grpc.Server
	health *health.Server
}

// NewGRPC creates a health server in the SERVING state.
func NewGRPC() *Health {
	h := &Health{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetServing(true)
	return h
}

// SetServing updates the status of both the overall server and ServiceName.
func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until Stop is called.
func (h *Health) Serve(lis net.Listener) error {
	log.Info().Str("component", "server").Str("addr", lis.Addr().String()).Msg("grpc health listening")
	return h.server.Serve(lis)
}

// Stop marks the service as not serving and drains connections.
func (h *Health) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
