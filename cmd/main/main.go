package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/api"
	"gitlab.com/smilefunnel/api/lead-engine/internal/cache"
	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	"gitlab.com/smilefunnel/api/lead-engine/internal/dlqworker"
	"gitlab.com/smilefunnel/api/lead-engine/internal/healthcheck"
	"gitlab.com/smilefunnel/api/lead-engine/internal/jetstream"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/internal/storage"
	"gitlab.com/smilefunnel/api/lead-engine/internal/usecase"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

const (
	serviceName = "lead-engine"
	version     = "1.0.0"

	notificationRetention = 7 * 24 * time.Hour
	dedupWindow           = 2 * time.Minute
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting lead engine",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
		zap.String("schema", cfg.Database.Schema),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	postgresRepo, err := storage.NewPostgresRepo(storage.Options{
		DSN:                cfg.Database.PostgresDSN,
		Schema:             cfg.Database.Schema,
		AutoMigrate:        cfg.Database.PostgresAutoMigrate,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LookupRetryMaxTime: cfg.Database.LookupRetryMaxTime,
	})
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	jsClient, err := jetstream.NewClient(cfg.NATS.URL, serviceName)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Repository adapters
	var organizationRepo storage.OrganizationRepo = storage.NewOrganizationRepoAdapter(postgresRepo)
	landingPageRepo := storage.NewLandingPageRepoAdapter(postgresRepo)
	leadRepo := storage.NewLeadRepoAdapter(postgresRepo)
	deadLetterRepo := storage.NewDeadLetterRepoAdapter(postgresRepo)

	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedisClient(context.Background(), cfg.Cache.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		organizationCache := cache.NewOrganizationCache(organizationRepo, redisClient, cfg.Cache.OrganizationTTL, cfg.Cache.KeyPrefix)
		changeSub, err := organizationCache.ListenForChanges(jsClient, cfg.Cache.InvalidationSubject)
		if err != nil {
			logger.Log.Fatal("Failed to subscribe to organization changes", zap.Error(err))
		}
		defer func() { _ = changeSub.Unsubscribe() }()
		organizationRepo = organizationCache
		logger.Log.Info("Organization cache enabled",
			zap.Duration("ttl", cfg.Cache.OrganizationTTL),
			zap.String("invalidation_subject", cfg.Cache.InvalidationSubject),
		)
	}

	sideEffectWorker, err := usecase.NewSideEffectWorker(cfg.WorkerPools.SideEffects, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize side effect worker pool", zap.Error(err))
	}

	var notifier usecase.Notifier
	if cfg.Notifications.Enabled {
		if err := setupStream(jsClient, cfg.NATS.NotificationStream, cfg.NATS.NotificationSubject, notificationRetention); err != nil {
			logger.Log.Fatal("Failed to set up notification stream", zap.Error(err))
		}
		notifier = usecase.NewJetStreamNotifier(jsClient, cfg.NATS.NotificationSubject, cfg.Notifications.DefaultRegion)
	} else {
		logger.Log.Info("Lead notifications disabled")
	}

	service := usecase.NewLeadService(organizationRepo, landingPageRepo, leadRepo, sideEffectWorker, notifier)

	processor := usecase.NewProcessor(service, jsClient, cfg)
	if err := processor.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up processor", zap.Error(err))
	}

	// The lead consumer parks messages on the DLQ stream, so it must exist
	// even when nothing drains it.
	var dlqWorker *dlqworker.Worker
	if cfg.NATS.DLQWorker.Enabled {
		dlqWorker, err = dlqworker.NewWorker(cfg.NATS.DLQWorker, cfg.NATS.DLQStream, cfg.NATS.DLQSubject, logger.Log, jsClient, processor.GetRouter(), deadLetterRepo)
		if err != nil {
			logger.Log.Fatal("Failed to initialize DLQ Worker", zap.Error(err))
		}
	} else {
		retention := time.Duration(cfg.NATS.DLQWorker.MaxAgeDays) * 24 * time.Hour
		if err := setupStream(jsClient, cfg.NATS.DLQStream, cfg.NATS.DLQSubject, retention); err != nil {
			logger.Log.Fatal("Failed to set up DLQ stream", zap.Error(err))
		}
		logger.Log.Info("DLQ worker disabled, parked messages stay on the stream")
	}

	httpServer := healthcheck.NewServer(healthcheck.Options{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Version:      version,
	}, logger.Log, postgresRepo, jsClient)

	if metricsEnabled {
		httpServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}
	httpServer.MountAPI(api.NewRouter(service))
	httpServer.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
		zap.String("api", fmt.Sprintf("http://localhost:%d/v1/leads", cfg.Server.Port)),
	)

	if err := processor.Start(); err != nil {
		logger.Log.Fatal("Failed to start processor", zap.Error(err))
	}

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if dlqWorker != nil {
		utils.SafeGo(func() {
			if err := dlqWorker.Start(mainCtx); err != nil {
				logger.Log.Error("DLQ Worker failed, initiating shutdown", zap.Error(err))
				select {
				case sigChan <- syscall.SIGTERM:
				default:
					logger.Log.Warn("Could not send SIGTERM to signal channel immediately")
				}
			}
		}, func(r interface{}, stack []byte) {
			logger.Log.Error("Panic in DLQ worker", zap.Any("panic", r), zap.ByteString("stack", stack))
		})
	}

	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	mainCancel()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", shutdownTimeout))

	// Stop intake first so no new side effects are scheduled, then drain the
	// pools and close the connections.
	var wg sync.WaitGroup
	stop := func(name string, fn func()) {
		wg.Add(1)
		utils.SafeGo(func() {
			defer wg.Done()
			logger.Log.Info("[shutdown] Stopping " + name)
			start := time.Now()
			fn()
			logger.Log.Info("[shutdown] Stopped "+name, zap.Duration("duration", time.Since(start)))
		}, func(r interface{}, stack []byte) {
			logger.Log.Error("[shutdown] Panic while stopping "+name,
				zap.Any("panic", r),
				zap.ByteString("stack", stack),
			)
		})
	}

	stop("HTTP server", func() {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		}
	})
	stop("lead processor", processor.Stop)
	if dlqWorker != nil {
		stop("DLQ worker", dlqWorker.Stop)
	}
	wg.Wait()

	stop("side effect worker pool", sideEffectWorker.Stop)
	wg.Wait()

	stop("connections", func() {
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		}
		jsClient.Close()
	})

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

	logger.Log.Info("Lead engine shutdown complete")
}

// setupStream ensures a file-backed limits stream on <subject>.>.
func setupStream(client jetstream.ClientInterface, name, subject string, maxAge time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return client.SetupStream(ctx, &nats.StreamConfig{
		Name:       name,
		Subjects:   []string{subject + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     maxAge,
		Duplicates: dedupWindow,
	})
}
