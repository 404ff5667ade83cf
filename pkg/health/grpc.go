package health

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCService is the service name reported for the inference server.
const GRPCService = "chatmallu.Inference"

// NewGRPCServer returns a gRPC health server that mirrors the inference
// component of c. The overall ("") service reflects IsSystemHealthy.
func NewGRPCServer(c *Checker) *health.Server {
	srv := health.NewServer()
	srv.SetServingStatus(GRPCService, healthpb.HealthCheckResponse_NOT_SERVING)
	c.OnChange(func(comp Component) {
		if comp.Name == ComponentInference {
			srv.SetServingStatus(GRPCService, servingStatus(comp.Status != StatusDown))
		}
		srv.SetServingStatus("", servingStatus(c.IsSystemHealthy()))
	})
	return srv
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
