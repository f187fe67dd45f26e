package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/api"
	"rollcall/internal/config"
	"rollcall/internal/metrics"
	"rollcall/internal/network"
	"rollcall/internal/service"
	"rollcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: local API, connectivity probe and background sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := serve(cfg); err != nil {
				logger.Error("agent startup failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func serve(cfg *config.Config) error {
	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	observer := metrics.NewPrometheusObserver()
	a, err := buildAgent(ctx, cfg, observer)
	if err != nil {
		return err
	}
	defer a.Close()

	// Event stream
	hub := service.NewHub(observer, cfg.Stream.HeartbeatInterval, cfg.Stream.HubBufferSize)
	stream := service.NewEventStream(hub, cfg.Stream.ReplayBufferSize)
	unsubscribe := a.orchestrator.Subscribe(stream.Publish)
	defer unsubscribe()

	// Start background routines
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		logger.Info("starting hub")
		hub.Run(ctx)
	}()
	stream.WatchNetwork(ctx, a.signal)

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		a.orchestrator.Run(ctx)
	}()

	// stopBackground must run before the deferred a.Close releases the stores
	stopBackground := func() {
		cancel()
		<-syncDone
		<-hubDone
	}

	if cfg.Remote.ProbeInterval > 0 {
		prober := network.NewProber(a.signal, probeURL(cfg), cfg.Remote.ProbeTimeout, cfg.Remote.ProbeInterval)
		go prober.Run(ctx)
	}

	var issuer *service.TokenIssuer
	if cfg.Auth.JWTSecret != "" {
		issuer = service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	// HTTP Server
	r := api.RegisterRoutes(api.Handlers{
		Attendance: api.NewAttendanceHandler(a.gateway, a.projections),
		Pending:    api.NewPendingHandler(a.pending),
		Sync:       api.NewSyncHandler(a.orchestrator, a.signal, a.queue),
		Stream:     api.NewStreamHandler(stream, hub),
	}, api.RouterOptions{
		Issuer:            issuer,
		DevPass:           cfg.Auth.DevPass,
		Redis:             a.rdb,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		SyncPerSecond:     cfg.RateLimit.SyncRequestsPerSecond,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("agent listening",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment),
			zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful Shutdown Signal Wait
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	return awaitShutdown(quit, serveErr, stopBackground, srv.Shutdown)
}

// awaitShutdown blocks until a signal or a listen failure. Both paths stop
// the background routines before returning.
func awaitShutdown(quit <-chan os.Signal, serveErr <-chan error, stop func(), shutdown func(context.Context) error) error {
	select {
	case <-quit:
	case err := <-serveErr:
		stop()
		return fmt.Errorf("server listen failed: %w", err)
	}
	logger.Info("shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop triggers first; an in-flight run sees the cancelled context
	stop()

	if err := shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("agent exited properly")
	return nil
}
