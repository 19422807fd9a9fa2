package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/api"
	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/event"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve decisions over gRPC and HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
			}
			httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				_ = grpcLis.Close()
				return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
			}
			return runServer(ctx, a, grpcLis, httpLis)
		},
	}
}

// runServer blocks until ctx is done or a listener fails, then shuts both
// servers down.
func runServer(ctx context.Context, a *app, grpcLis, httpLis net.Listener) error {
	a.Start(ctx)

	grpcServer := grpc.NewServer()
	api.RegisterDecisionServer(grpcServer, api.NewGrpcHandler(a.service, a.log))

	srv := &http.Server{
		Handler: api.NewHTTPMux(api.HTTPDeps{
			Service:  a.service,
			Catalog:  a.catalog,
			Gatherer: a.registry,
			Health:   event.NewHealthHandler(a.probes...),
			Ready:    event.NewReadyHandler(a.probes...),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.log.WithFields(map[string]any{"addr": grpcLis.Addr().String()}).Info("grpc listening")
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		a.log.WithFields(map[string]any{"addr": httpLis.Addr().String()}).Info("http listening")
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	grpcServer.GracefulStop()
	return runErr
}
