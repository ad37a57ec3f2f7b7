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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/api/grpc"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/api/middleware"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/api/rest"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/api/websocket"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/config"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/k8s"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphcache"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/logger"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/tracing"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/repository"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	boot := logger.StdLogger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("Failed to load config", zap.Error(err))
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		JSON:       cfg.LogFormat == "json",
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	})
	if err != nil {
		boot.Fatal("Failed to create logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("RBAC graph service starting",
		zap.String("version", Version),
		zap.Int("port", cfg.Port),
		zap.String("database_driver", cfg.DatabaseDriver),
	)

	shutdownTracing, err := tracing.Init("rbacgraph", cfg.TracingEndpoint, cfg.TracingSampleRate)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	repo, err := repository.New(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot store: %w", err)
	}
	defer repo.Close()
	log.Info("Snapshot store ready")

	// Live capture is optional; the rest of the API works without a cluster.
	var live service.SnapshotSource
	client, err := k8s.NewClient(cfg.KubeconfigPath, cfg.KubeContext)
	if err != nil {
		log.Warn("No cluster access, live snapshots disabled", zap.Error(err))
	} else {
		client.SetTimeout(time.Duration(cfg.K8sTimeoutSec) * time.Second)
		if cfg.K8sRateLimitPerSec > 0 {
			client.SetLimiter(rate.NewLimiter(rate.Limit(cfg.K8sRateLimitPerSec), cfg.K8sRateLimitBurst))
		}
		live = k8s.NewLoader(client, k8s.LoaderOptions{IncludeWorkloads: cfg.IncludeWorkloads}, log.Named("k8s"))
		log.Info("Live snapshots enabled", zap.String("context", cfg.KubeContext))
	}

	cache := graphcache.New(cfg.GraphCacheSize, time.Duration(cfg.GraphCacheTTLSec)*time.Second)
	svc := service.NewRBACGraphService(repo, live, cache, service.Options{MaxNodes: cfg.GraphMaxNodes}, log.Named("service"))

	hub := websocket.NewHub(ctx, log.Named("ws"))
	go hub.Run()
	service.SetBroadcaster(svc, hub)

	buildTimeout := time.Duration(cfg.BuildTimeoutSec) * time.Second
	router := mux.NewRouter()

	handler := rest.NewHandler(svc, buildTimeout, Version, log.Named("rest"))
	router.HandleFunc("/health", handler.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	rest.SetupRoutes(apiRouter, handler)

	wsHandler := websocket.NewHandler(ctx, hub, svc, cfg.AllowedOrigins, buildTimeout)
	router.HandleFunc("/ws/rbac-graph", wsHandler.ServeWS).Methods("GET")

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.StructuredLog(log.Named("http")))
	router.Use(middleware.SecureHeaders)
	snapshotMax := int64(cfg.MaxSnapshotBytes)
	if snapshotMax <= 0 {
		snapshotMax = middleware.DefaultSnapshotMaxBodyBytes
	}
	router.Use(middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, snapshotMax))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMin, cfg.RateLimitBurst))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID"},
		AllowCredentials: true,
	})

	requestTimeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout,
		IdleTimeout:       120 * time.Second,
	}

	var grpcServer *grpc.Server
	if cfg.GRPCPort > 0 {
		grpcServer = grpc.NewServer(cfg.GRPCPort, log.Named("grpc"))
		if err := grpcServer.Start(); err != nil {
			return err
		}
		go grpcServer.WatchDependency(ctx, repo, 15*time.Second)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			zap.String("api", fmt.Sprintf("http://localhost:%d/api/v1", cfg.Port)),
			zap.String("websocket", fmt.Sprintf("ws://localhost:%d/ws/rbac-graph", cfg.Port)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	hub.Stop()
	if grpcServer != nil {
		grpcServer.Stop()
	}
	cancel()

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	return nil
}
