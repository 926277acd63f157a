package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"count-service/config"
	"count-service/internal/api"
	"count-service/internal/broker"
	"count-service/internal/redisclient"
	"count-service/internal/service"
	"count-service/internal/store"
	"count-service/internal/util"
	"count-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting count service")

	tp, err := util.InitTracer("count-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCounting)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	baselineProvider := service.NewPOSBaselineProvider(db)
	baselineClient := service.NewBaselineClient(baselineProvider, db)
	sessionService := service.NewSessionService(db, eventPublisher, baselineClient)
	countService := service.NewCountService(db, eventPublisher, cfg.Counting)
	aggregationService := service.NewAggregationService(db, redisClient)
	reconcileService := service.NewReconcileService(db, cfg.Counting)
	projector := service.NewProjector(db, aggregationService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	projectionConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCounting, cfg.Kafka.ConsumerGroup)
	projectionWorker := worker.NewProjectionWorker(projectionConsumer, projector)
	go func() {
		if err := projectionWorker.Start(workerCtx); err != nil {
			log.Printf("Projection worker error: %v", err)
		}
	}()

	auditConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCounting, "count-audit-group")
	auditWorker := worker.NewAuditWorker(auditConsumer, projector)
	go func() {
		if err := auditWorker.Start(workerCtx); err != nil {
			log.Printf("Audit worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(sessionService, countService, aggregationService, reconcileService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	projectionWorker.Stop()
	auditWorker.Stop()

	log.Println("Server exited")
}
