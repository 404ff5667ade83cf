package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatmallu/client/pkg/config"
	"chatmallu/client/pkg/di"
	"chatmallu/client/pkg/logger"
	"chatmallu/client/pkg/router"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.New()

	log := logger.New(di.LoggerConfig(cfg))
	logger.SetGlobal(log)
	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg, di.WithLogger(log))
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Server.GRPCPort != "" {
		grpcServer := newGRPCServer(container.Health)
		g.Go(func() error {
			return serveGRPC(gctx, log, cfg.Server.GRPCPort, grpcServer)
		})
	}
	g.Go(func() error { return container.Health.Run(gctx) })
	g.Go(func() error {
		container.Hub.Run(gctx)
		return nil
	})
	if r.RateLimiter != nil {
		g.Go(func() error {
			r.RateLimiter.Run(gctx)
			return nil
		})
	}
	if container.Cache != nil {
		g.Go(func() error { return container.Cache.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.LogError(err, "Server stopped with error")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := container.Close(closeCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}
	log.Info("Server exited gracefully")
}
