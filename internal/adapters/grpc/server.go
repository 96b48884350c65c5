package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yallacatch/claim-engine/internal/application"
)

type ClaimInternalServer struct {
	grpc_health_v1.UnimplementedHealthServer
	service *application.Service
}

func NewClaimInternalServer(service *application.Service) *ClaimInternalServer {
	return &ClaimInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc *ClaimInternalServer) {
	grpc_health_v1.RegisterHealthServer(server, svc)
}

func (s *ClaimInternalServer) Check(_ context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *ClaimInternalServer) Watch(_ *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return stream.Send(&grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING})
}
