package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/disaster-reports/internal/api"
	"github.com/mr1hm/disaster-reports/internal/config"
	internalgrpc "github.com/mr1hm/disaster-reports/internal/grpc"
	"github.com/mr1hm/disaster-reports/internal/intake"
	"github.com/mr1hm/disaster-reports/internal/logging"
	"github.com/mr1hm/disaster-reports/internal/observability"
	"github.com/mr1hm/disaster-reports/internal/repository"
	"github.com/mr1hm/disaster-reports/internal/stream"
	"github.com/mr1hm/disaster-reports/internal/uploads"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	slog.Info("database ready", "path", cfg.DB.Path)

	files, err := uploads.NewManager(cfg.Uploads.Dir, nil)
	if err != nil {
		logging.Fatalf("Failed to initialize upload storage: %v", err)
	}
	defer files.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	broadcaster := stream.NewBroadcaster()

	svc := intake.NewService(cfg, db, files, broadcaster, metrics)
	svc.Start(ctx)

	var healthServer *internalgrpc.Server
	if cfg.GRPC.Enabled {
		healthServer = internalgrpc.NewServer(db, cfg.GRPC.HealthCheckInterval)
		healthServer.Watch(ctx)
		go func() {
			grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
			if err := healthServer.Start(grpcAddr); err != nil {
				logging.Fatalf("gRPC server error: %v", err)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = cfg.Uploads.MaxBytes
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.API.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(cfg.API.RateLimit))

	handler := api.NewHandler(api.Deps{
		Repo:           db,
		Intake:         svc,
		Files:          files,
		Broadcaster:    broadcaster,
		Metrics:        metrics,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
	})
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// open SSE streams end once the broadcaster closes their channels
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	svc.Stop()
	if healthServer != nil {
		healthServer.Stop()
	}

	slog.Info("shutdown complete")
}
