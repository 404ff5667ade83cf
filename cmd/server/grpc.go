package main

import (
	"context"
	"fmt"
	"net"

	"chatmallu/client/pkg/health"
	"chatmallu/client/pkg/logger"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// newGRPCServer exposes the inference indicator over the standard gRPC
// health protocol. Build it before the checker runs so no change is missed.
func newGRPCServer(checker *health.Checker) *grpc.Server {
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, health.NewGRPCServer(checker))
	return grpcServer
}

// serveGRPC serves on port until ctx is done.
func serveGRPC(ctx context.Context, log *logger.Logger, port string, grpcServer *grpc.Server) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	log.Info("gRPC health server listening", "port", port)
	if err := grpcServer.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
