package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/cache"
	"github.com/demoody/missed-call-responder/internal/config"
	"github.com/demoody/missed-call-responder/internal/dispatcher"
	"github.com/demoody/missed-call-responder/internal/events"
	"github.com/demoody/missed-call-responder/internal/httpapi"
	"github.com/demoody/missed-call-responder/internal/jetstream"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/internal/sms"
	"github.com/demoody/missed-call-responder/internal/storage"
	"github.com/demoody/missed-call-responder/internal/usecase"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Missed Call Responder",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	deviceRepo := storage.NewDeviceRepoAdapter(postgresRepo)
	rateLimitRepo := storage.NewRateLimitRepoAdapter(postgresRepo)

	// Bloom-backed negative cache in front of the block list
	blockListRepo := cache.NewBlockListCache(storage.NewBlockListRepoAdapter(postgresRepo), 10000, 0.01)
	if err := blockListRepo.WarmUp(context.Background()); err != nil {
		logger.Log.Warn("Block list cache warm-up failed, continuing without seed", zap.Error(err))
	}

	// SMS provider client
	smsClient := sms.NewFast2SMSClient(sms.Fast2SMSConfig{
		APIKey:         cfg.SMS.APIKey,
		SenderID:       cfg.SMS.SenderID,
		BaseURL:        cfg.SMS.BaseURL,
		Route:          cfg.SMS.Route,
		RequestTimeout: cfg.SMS.RequestTimeout,
	})

	// Outcome event publisher, NATS-backed when enabled
	publisher, jsClient, err := initPublisher(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize outcome publisher", zap.Error(err))
	}

	// Create the core service
	service, err := usecase.NewResponderService(messageRepo, deviceRepo, blockListRepo, rateLimitRepo, smsClient, publisher, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize responder service", zap.Error(err))
	}

	// Background dispatch worker
	worker := dispatcher.NewWorker(cfg.Dispatcher, service, logger.Log)

	// HTTP API server
	apiServer := httpapi.NewServer(strconv.Itoa(cfg.Server.Port), service, worker, logger.Log)

	// Register metrics handler if enabled BEFORE starting the server
	if metricsEnabled {
		apiServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	worker.Start(mainCtx)
	apiServer.Start()

	logger.Log.Info("API available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("intake", fmt.Sprintf("http://localhost:%d/api/v1/missed_calls", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown HTTP server first so no new work arrives
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown dispatch worker, letting an in-flight cycle drain
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping dispatch worker")
		start := time.Now()
		worker.Stop()
		service.Close()
		logger.Log.Info("[shutdown] Dispatch worker stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping dispatch worker",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close external connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		if jsClient != nil {
			logger.Log.Info("[shutdown] Closing JetStream connection")
			jsStart := time.Now()
			publisher.Close()
			logger.Log.Info("[shutdown] JetStream connection closed",
				zap.Duration("duration", time.Since(jsStart)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Missed Call Responder shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initPublisher wires the outcome event publisher. Returns a no-op publisher
// when NATS is disabled.
func initPublisher(cfg *config.Config) (events.Publisher, *jetstream.Client, error) {
	if !cfg.NATS.Enabled {
		logger.Log.Info("NATS disabled, outcome events will not be published")
		return events.NoopPublisher{}, nil, nil
	}

	client, err := jetstream.NewClient(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}

	publisher, err := events.NewJetStreamPublisher(context.Background(), client,
		cfg.NATS.Stream, cfg.NATS.SubjectPrefix, cfg.NATS.MaxAgeDays)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	logger.Log.Info("Outcome event publishing enabled",
		zap.String("stream", cfg.NATS.Stream),
		zap.String("subject_prefix", cfg.NATS.SubjectPrefix))
	return publisher, client, nil
}
