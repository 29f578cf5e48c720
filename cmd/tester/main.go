package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	"gitlab.com/smilefunnel/api/lead-engine/internal/jetstream"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

// target is one organization and landing page pair that receives submissions.
type target struct {
	OrganizationID string
	LandingPageID  string
}

// BatchTask is a batch of submissions published by one pool worker.
type BatchTask struct {
	Targets    []target
	NatsClient jetstream.ClientInterface
}

const defaultBatchSize = 50

var subject = string(model.V1LeadSubmissions)

func main() {
	natsURL := flag.String("url", "", "NATS server URL (defaults to the configured one)")
	targetsStr := flag.String("targets", "", "Comma-separated organization:landing_page pairs")
	rate := flag.Int("rate", 50, "Target submissions per second (total)")
	duration := flag.Duration("duration", time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent workers")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Submissions published per worker batch")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Lead submission load generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -targets org_1:lp_1,org_2:lp_2 [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *natsURL == "" {
		cfg, err := config.LoadConfig("")
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		*natsURL = cfg.NATS.URL
	}
	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
	}
	if *rate <= 0 {
		fmt.Println("rate must be positive")
		os.Exit(1)
	}

	targets, err := parseTargets(*targetsStr)
	if err != nil {
		fmt.Printf("Invalid targets: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting lead submission load generator",
		zap.String("nats_url", *natsURL),
		zap.Int("targets", len(targets)),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
	)

	natsClient, err := jetstream.NewClient(*natsURL, "lead-engine-loadgen")
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
	}
	defer natsClient.Close()

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		batch := data.(BatchTask)
		for _, t := range batch.Targets {
			run := utils.WrapWithContextRecovery(func(ctx context.Context) error {
				return publishSubmission(ctx, batch.NatsClient, t)
			})
			if err := run(ctx); err != nil {
				logger.Log.Warn("Failed to publish submission",
					zap.String("organization_id", t.OrganizationID),
					zap.Error(err),
				)
			}
			wg.Done()
		}
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runBatchLoadLoop(ctx, *rate, *duration, *batchSize, targets, natsClient, pool, &wg)
	}()

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down...", zap.String("signal", sig.String()))
		cancel()
		<-loopDone
	case <-loopDone:
		logger.Log.Info("Load generation duration finished")
	}

	wg.Wait()
	cancel()
	metricsWg.Wait()
	logger.Log.Info("Load generator shutdown complete")
}

// parseTargets reads "org:landing_page" pairs.
func parseTargets(raw string) ([]target, error) {
	var targets []target
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		org, page, ok := strings.Cut(pair, ":")
		if !ok || org == "" || page == "" {
			return nil, fmt.Errorf("target %q is not organization:landing_page", pair)
		}
		targets = append(targets, target{OrganizationID: org, LandingPageID: page})
	}
	if len(targets) == 0 {
		return nil, errors.New("no targets provided")
	}
	return targets, nil
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Prometheus metrics server failed", zap.Error(err))
		}
	}()
	return server
}

// runBatchLoadLoop paces submissions at rate and hands them to the pool in batches.
func runBatchLoadLoop(ctx context.Context, rate int, duration time.Duration, batchSize int, targets []target, nc jetstream.ClientInterface, pool *ants.PoolWithFunc, wg *sync.WaitGroup) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	durationTimer := time.NewTimer(duration)
	defer durationTimer.Stop()

	counter := 0
	current := make([]target, 0, batchSize)

	submitBatch := func(batch []target) {
		if len(batch) == 0 {
			return
		}
		wg.Add(len(batch))
		if err := pool.Invoke(BatchTask{Targets: batch, NatsClient: nc}); err != nil {
			logger.Log.Warn("Failed to invoke worker pool for batch", zap.Int("batch_size", len(batch)), zap.Error(err))
			wg.Add(-len(batch))
			for _, t := range batch {
				observer.IncLoadgenPublishErrors(subject, t.OrganizationID)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			submitBatch(current)
			return
		case <-durationTimer.C:
			submitBatch(current)
			return
		case <-ticker.C:
			t := targets[counter%len(targets)]
			counter++
			observer.IncLoadgenMessagesAttempted(subject, t.OrganizationID)

			current = append(current, t)
			if len(current) >= batchSize {
				submitBatch(current)
				current = make([]target, 0, batchSize)
			}
		}
	}
}

// publishSubmission publishes one fake submission for t.
func publishSubmission(ctx context.Context, nc jetstream.ClientInterface, t target) error {
	submission := model.NewSubmission(&model.Submission{
		OrganizationID: t.OrganizationID,
		LandingPageID:  t.LandingPageID,
	})
	data, err := json.Marshal(submission)
	if err != nil {
		observer.IncLoadgenPublishErrors(subject, t.OrganizationID)
		return fmt.Errorf("marshal submission: %w", err)
	}

	headers := map[string]string{
		"Nats-Msg-Id":     gofakeit.UUID(),
		"Organization-Id": t.OrganizationID,
	}
	if err := nc.Publish(ctx, subject+"."+t.OrganizationID, data, headers); err != nil {
		observer.IncLoadgenPublishErrors(subject, t.OrganizationID)
		return err
	}
	observer.IncLoadgenMessagesPublished(subject, t.OrganizationID)
	return nil
}
