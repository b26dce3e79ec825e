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

	"github.com/gin-gonic/gin"

	"github.com/aamircoretechies/bison360-sub000/config"
	"github.com/aamircoretechies/bison360-sub000/internal/api"
	"github.com/aamircoretechies/bison360-sub000/internal/broker"
	"github.com/aamircoretechies/bison360-sub000/internal/cart"
	"github.com/aamircoretechies/bison360-sub000/internal/pricing"
	"github.com/aamircoretechies/bison360-sub000/internal/redisclient"
	"github.com/aamircoretechies/bison360-sub000/internal/service"
	"github.com/aamircoretechies/bison360-sub000/internal/store"
	"github.com/aamircoretechies/bison360-sub000/internal/syncqueue"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
	"github.com/aamircoretechies/bison360-sub000/internal/worker"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS transaction service")

	tp, err := util.InitTracer("bison360-pos", cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	probe := syncqueue.NewProbe(cfg.Kafka.Brokers[0])
	queue := syncqueue.New(db, eventPublisher, probe, cfg.Sync)

	inventoryClient := service.NewInventoryClient(db, redisClient)
	gateway := service.NewSimulatedGateway(cfg.POS.GatewayLatency, cfg.POS.GatewaySuccessRate)
	pricer := pricing.NewEngine(cfg.POS.TaxRate)
	carts := cart.NewManager(cfg.POS.CartTTL)

	registerService := service.NewRegisterService(
		db, inventoryClient, carts, pricer, gateway,
		eventPublisher, queue, probe, cfg.POS.GatewayTimeout,
	)
	backOffice := service.NewBackOffice(db, eventPublisher)

	ctx := context.Background()
	if err := inventoryClient.SyncStockToRedis(ctx); err != nil {
		log.Printf("Failed to sync stock to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go carts.RunJanitor(workerCtx, time.Minute)

	saleConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales, cfg.Kafka.ConsumerGroup)
	backOfficeWorker := worker.NewBackOfficeWorker(saleConsumer, backOffice)
	go func() {
		if err := backOfficeWorker.Start(workerCtx); err != nil {
			log.Printf("Back office worker error: %v", err)
		}
	}()

	syncWorker := worker.NewSyncWorker(queue, probe, cfg.Sync.FlushInterval, cfg.Sync.ProbeInterval)
	go func() {
		if err := syncWorker.Start(workerCtx); err != nil {
			log.Printf("Sync worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(registerService, queue, probe)
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
	backOfficeWorker.Stop()

	log.Println("Server exited")
}
