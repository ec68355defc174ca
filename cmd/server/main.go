package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/easy-inventory/internal/adapter/handler"
	"github.com/rl1809/easy-inventory/internal/adapter/report"
	"github.com/rl1809/easy-inventory/internal/adapter/storage"
	"github.com/rl1809/easy-inventory/internal/config"
	"github.com/rl1809/easy-inventory/internal/core/service"
	"github.com/rl1809/easy-inventory/internal/platform/otel"
)

const serviceName = "easy-inventory"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	// Initialize database
	dialect, err := storage.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatalf("invalid database driver: %v", err)
	}
	db, err := storage.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect %s: %v", dialect, err)
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		log.Fatalf("failed to migrate %s: %v", dialect, err)
	}
	log.Printf("connected to %s", dialect)

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Initialize blob storage
	bucket, err := storage.OpenBucket(ctx, cfg.BlobURL)
	if err != nil {
		log.Fatalf("failed to open bucket: %v", err)
	}
	log.Printf("opened bucket %s", cfg.BlobURL)

	// Initialize adapters
	sqlAdapter := storage.NewSQLAdapter(db, dialect)
	redisAdapter := storage.NewRedisAdapter(rdb)
	blobAdapter := storage.NewBlobAdapter(bucket, cfg.PublicBaseURL)
	mailer := storage.NewLogMailer(cfg.PublicBaseURL)
	renderer, err := report.NewPDFRenderer(cfg.ReportIcon)
	if err != nil {
		log.Fatalf("failed to load report icon: %v", err)
	}

	// Initialize services
	tokens := service.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	authService := service.NewAuthService(sqlAdapter, redisAdapter, redisAdapter, mailer, tokens, cfg.ResetTokenTTL)
	inventoryService := service.NewInventoryService(sqlAdapter, blobAdapter, redisAdapter, redisAdapter, cfg.MaxPhotoBytes, cfg.CleanupQueueSize)
	reportService := service.NewReportService(inventoryService, authService, renderer, cfg.ReportDir)
	cleaner := service.NewBlobCleaner(blobAdapter, sqlAdapter)

	// Start cleanup workers and the tombstone sweeper
	var wg sync.WaitGroup
	cleaner.StartWorkers(cfg.CleanupWorkers, inventoryService.GetCleanupQueue(), &wg)
	log.Printf("started %d cleanup workers", cfg.CleanupWorkers)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		cleaner.RunSweeper(sweepCtx, cfg.SweepInterval)
	}()

	// Initialize gRPC server
	grpcHandler := handler.NewGRPCHandler(authService, inventoryService, reportService)
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcHandler.AuthInterceptor),
	)
	handler.RegisterInventoryServiceServer(grpcServer, grpcHandler)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.InventoryServiceName, healthpb.HealthCheckResponse_SERVING)

	// Start gRPC server
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(authService, inventoryService, reportService, blobAdapter, handler.HTTPConfig{
		CookieName:    cfg.CookieName,
		CookieSecure:  cfg.CookieSecure,
		CORSOrigins:   cfg.CORSOrigins,
		MaxPhotoBytes: cfg.MaxPhotoBytes,
	})

	httpServer := httpHandler.NewServer(cfg.HTTPAddr)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	healthServer.Shutdown()

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	log.Println("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	// Close cleanup queue and wait for workers
	inventoryService.Close()
	wg.Wait()
	stopSweeper()
	<-sweeperDone
	log.Println("workers stopped")

	// Close connections
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
	bucket.Close()
	rdb.Close()
	db.Close()
	log.Println("connections closed")
}
