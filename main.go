package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowermarket-svc/accounts"
	"flowermarket-svc/cache"
	"flowermarket-svc/catalog"
	"flowermarket-svc/config"
	"flowermarket-svc/database"
	"flowermarket-svc/dispatch"
	"flowermarket-svc/grpcserver"
	"flowermarket-svc/handlers"
	"flowermarket-svc/kafka"
	"flowermarket-svc/middleware"
	"flowermarket-svc/notifications"
	"flowermarket-svc/orders"
	"flowermarket-svc/push"
	"flowermarket-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	repo := repository.NewPostgresRepository(db)

	rdb, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}
	redisCache := cache.New(rdb, logger)

	shutdown, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Committed notifications always refresh the unread counters; Kafka
	// publishing joins in when a broker is configured.
	sinks := dispatch.Sinks{redisCache}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer, err := kafka.InitProducer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	if producer != nil {
		defer producer.Close()
		sinks = append(sinks, kafka.NewPublisher(producer, cfg.KafkaTopic, logger))

		consumer, err := kafka.InitConsumer(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
		}
		defer consumer.Close()

		notifier := push.NewNotifier(repo, push.NewExpoClient(cfg.ExpoPushURL, logger), logger)
		go func() {
			if err := kafka.NewConsumer(consumer, cfg.KafkaTopic, notifier, logger).Start(ctx); err != nil {
				logger.Error("Kafka consumer error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("Kafka disabled, push notifications are off")
	}

	issuer := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	h := handlers.Handlers{
		Orders:        handlers.NewOrderHandler(orders.NewService(repo, sinks, redisCache, logger), logger),
		Notifications: handlers.NewNotificationHandler(notifications.NewService(repo, redisCache, sinks, logger), logger),
		Accounts:      handlers.NewAccountHandler(accounts.NewService(repo, issuer, sinks, logger), logger),
		Products:      handlers.NewProductHandler(catalog.NewService(repo, redisCache, logger), logger),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())
	handlers.RegisterRoutes(router, h, middleware.AuthMiddleware(issuer, repo, logger))

	restSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()
	logger.Info("REST API started", zap.String("port", cfg.Port))

	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}
	grpcServer, healthServer := grpcserver.NewServer()
	go grpcserver.WatchDatabase(ctx, healthServer, db, 15*time.Second, logger)
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()
	logger.Info("gRPC health server started", zap.String("port", cfg.GRPCPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := restSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("Servers exited")
}
