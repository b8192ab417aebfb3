package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ev-marketplace/config"
	"ev-marketplace/internal/adapter/broker"
	"ev-marketplace/internal/adapter/carrier"
	httpHandler "ev-marketplace/internal/adapter/http/handler"
	pgStorage "ev-marketplace/internal/adapter/storage/postgres"
	redisStorage "ev-marketplace/internal/adapter/storage/redis"
	"ev-marketplace/internal/core/ports"
	"ev-marketplace/internal/service"
	"ev-marketplace/internal/worker"
	"ev-marketplace/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("ev-marketplace", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting EV Marketplace")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Apply schema migrations
	if err := pgStorage.RunMigrations(cfg.Database.DSN(), log); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	productRepo := pgStorage.NewProductRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	orderLock := redisStorage.NewOrderLock(rdb)
	carrierCache := redisStorage.NewCarrierCache(rdb)

	// Event publisher (Kafka optional)
	var publisher ports.EventPublisher = broker.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka, log)
		defer producer.Close() //nolint:errcheck
		publisher = producer
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka producer enabled")
	}

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	carrierClient := carrier.NewClient(cfg.Carrier, log)

	// Initialize business services
	ledgerSvc := service.NewLedgerService(walletRepo, ledgerRepo, transactor, log)
	orderSvc := service.NewOrderService(orderRepo, productRepo, ledgerSvc, transactor, publisher, log)
	reconcilerSvc := service.NewReconcilerService(
		orderRepo,
		orderSvc,
		carrierClient,
		carrierCache,
		orderLock,
		cfg.Carrier.CacheTTL,
		cfg.Reconcile.LockTTL,
		cfg.Reconcile.BatchSize,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup

	reconcileWorker := worker.NewReconcileWorker(reconcilerSvc, cfg.Reconcile.Interval, log)
	sweeper := worker.NewOrphanSweeper(ledgerRepo, ledgerSvc, cfg.Reconcile.SweepGrace, cfg.Reconcile.SweepEvery, log)

	wg.Add(2)
	go func() {
		defer wg.Done()
		reconcileWorker.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(workerCtx)
	}()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		OrderSvc:       orderSvc,
		ReconcilerSvc:  reconcilerSvc,
		SigSvc:         sigSvc,
		TokenSvc:       tokenSvc,
		CallbackSecret: cfg.Payment.CallbackSecret,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopWorkers()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
