package dlqworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	"gitlab.com/smilefunnel/api/lead-engine/internal/ingestion"
	internal_js "gitlab.com/smilefunnel/api/lead-engine/internal/jetstream"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/internal/storage"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

const (
	defaultMsgChanCap = 100
	fetchBatchSize    = 10
	fetchMaxWait      = 5 * time.Second
	taskTimeout       = time.Minute
)

// dlqAcker is the part of *nats.Msg the worker settles DLQ messages with.
type dlqAcker interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// Worker drains the lead DLQ. Messages parked after exhausting retries are
// replayed through the router a few times; everything else is archived to
// the dead_letters table for an operator.
type Worker struct {
	cfg         config.DLQWorkerConfig
	stream      string
	subject     string
	durable     string
	logger      *zap.Logger
	js          internal_js.ClientInterface
	pool        *ants.Pool
	router      ingestion.RouterInterface
	store       storage.DeadLetterRepo
	msgCh       chan *nats.Msg
	stopWg      sync.WaitGroup
	cancel      context.CancelFunc
	releaseOnce sync.Once
}

// durableName derives a valid durable consumer name from the DLQ subject.
func durableName(dlqSubject string) string {
	return fmt.Sprintf("%s_worker_consumer", strings.ReplaceAll(dlqSubject, ".", "_"))
}

// NewWorker creates the worker and sets up the DLQ stream and its pull consumer.
func NewWorker(cfg config.DLQWorkerConfig, dlqStream, dlqSubject string, baseLogger *zap.Logger, jsClient internal_js.ClientInterface, router ingestion.RouterInterface, store storage.DeadLetterRepo) (*Worker, error) {
	log := baseLogger.Named("dlq_worker")
	pool, err := ants.NewPool(cfg.Workers,
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("Worker panic caught", zap.Any("panic", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	setupCtx := context.Background()
	filter := dlqSubject + ".>"
	durable := durableName(dlqSubject)

	streamCfg := &nats.StreamConfig{
		Name:      dlqStream,
		Subjects:  []string{filter},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
	}
	if err := jsClient.SetupStream(setupCtx, streamCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ stream '%s': %w", dlqStream, err)
	}
	log.Info("DLQ Stream setup complete", zap.String("stream", dlqStream))

	consumerCfg := &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: filter,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if err := jsClient.SetupConsumer(setupCtx, dlqStream, consumerCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ consumer '%s' for stream '%s': %w", durable, dlqStream, err)
	}
	log.Info("DLQ Consumer setup complete", zap.String("consumer", durable))

	worker := &Worker{
		cfg:     cfg,
		stream:  dlqStream,
		subject: dlqSubject,
		durable: durable,
		logger:  log,
		js:      jsClient,
		pool:    pool,
		router:  router,
		store:   store,
		msgCh:   make(chan *nats.Msg, defaultMsgChanCap),
	}

	log.Info("DLQ Worker initialized", zap.Int("pool_size", cfg.Workers))
	return worker, nil
}

// Start runs the fetcher and dispatcher loops and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	filter := w.subject + ".>"
	w.logger.Info("Attempting DLQ pull subscription",
		zap.String("stream", w.stream),
		zap.String("subject", filter),
		zap.String("durable_name", w.durable),
	)

	sub, err := w.js.SubscribePull(w.stream, filter, w.durable)
	if err != nil {
		w.logger.Error("Failed to create DLQ pull subscription", zap.Error(err))
		cancel()
		return fmt.Errorf("failed to create DLQ pull subscription: %w", err)
	}

	w.stopWg.Add(2)
	go w.fetchMessages(derivedCtx, sub)
	go w.dispatchMessages(derivedCtx)

	w.logger.Info("DLQ worker started successfully")
	<-derivedCtx.Done()
	w.logger.Info("DLQ worker context cancelled, initiating shutdown...")
	return nil
}

// Stop waits for the loops to exit and releases the pool.
func (w *Worker) Stop() {
	w.logger.Info("Stopping DLQ worker...")
	if w.cancel != nil {
		w.cancel()
	}
	w.stopWg.Wait()

	w.releaseOnce.Do(func() {
		w.pool.Release()
	})
	w.logger.Info("DLQ worker stopped successfully")
}

func (w *Worker) fetchMessages(ctx context.Context, sub *nats.Subscription) {
	defer w.stopWg.Done()

	for {
		if ctx.Err() != nil {
			w.logger.Info("Fetcher loop stopping due to context cancellation")
			return
		}

		msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				w.logger.Warn("DLQ subscription closed, fetcher stopping", zap.Error(err))
				return
			}
			observer.IncDlqFetchError()
			w.logger.Error("Fetcher loop error retrieving messages", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case w.msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()

	for {
		observer.SetDlqQueueLength(len(w.msgCh))

		select {
		case <-ctx.Done():
			w.logger.Info("Dispatcher loop stopping due to context cancellation")
			return
		case msg := <-w.msgCh:
			currentMsg := msg
			err := w.pool.Submit(func() {
				taskCtx, taskCancel := context.WithTimeout(context.Background(), taskTimeout)
				defer taskCancel()

				var numDelivered uint64 = 1
				if meta, metaErr := currentMsg.Metadata(); metaErr == nil {
					numDelivered = meta.NumDelivered
				}
				w.handle(taskCtx, currentMsg, currentMsg.Data, numDelivered)
			})
			if err != nil {
				w.logger.Error("Failed to submit task to ants pool", zap.Error(err))
				if nakErr := currentMsg.NakWithDelay(5 * time.Second); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
				}
			}
		}
	}
}

// handle settles one DLQ message. numDelivered counts deliveries of the DLQ
// message itself, not of the original.
func (w *Worker) handle(ctx context.Context, acker dlqAcker, data []byte, numDelivered uint64) {
	startTime := time.Now()
	defer func() {
		observer.ObserveDlqProcessingDuration(time.Since(startTime))
	}()

	var payload model.DLQPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		w.logger.Error("Failed to unmarshal DLQ payload", zap.Error(err), zap.ByteString("data", data))
		if termErr := acker.Term(); termErr != nil {
			w.logger.Error("Failed to terminate malformed DLQ message", zap.Error(termErr))
		}
		observer.IncDeadLetter("", "malformed")
		return
	}

	log := w.logger.With(
		zap.String("source_subject", payload.SourceSubject),
		zap.String("organization_id", payload.Organization),
		zap.String("error_type", payload.ErrorType),
		zap.Uint64("num_delivered", numDelivered),
	)

	if payload.ErrorType != apperrors.ErrorTypeRetryable || numDelivered > uint64(w.cfg.ReplayAttempts) {
		w.archive(ctx, acker, log, data, payload, payload.Error, numDelivered)
		return
	}

	routerMetadata := &model.MessageMetadata{
		MessageSubject: payload.SourceSubject,
		MessageID:      fmt.Sprintf("dlq-replay-%d", numDelivered),
		OrganizationID: payload.Organization,
		NumDelivered:   payload.RetryCount + numDelivered,
		Timestamp:      payload.Timestamp,
	}
	handlerCtx := logger.WithLogger(ctx, log)

	processingErr := w.router.Route(handlerCtx, routerMetadata, payload.OriginalPayload)
	if processingErr == nil {
		log.Info("Replayed DLQ message")
		if ackErr := acker.Ack(); ackErr != nil {
			log.Error("Failed to ACK replayed DLQ message", zap.Error(ackErr))
		}
		observer.IncDeadLetter(payload.Organization, "replayed")
		return
	}

	if apperrors.IsRetryable(processingErr) && numDelivered < uint64(w.cfg.ReplayAttempts) {
		delay := calculateBackoffDelay(int(numDelivered), w.cfg.BaseDelay, w.cfg.MaxDelay)
		log.Info("Retrying DLQ message with backoff", zap.Error(processingErr), zap.Duration("delay", delay))
		if nakErr := acker.NakWithDelay(delay); nakErr != nil {
			log.Error("Failed to NAK DLQ message with delay", zap.Error(nakErr))
		}
		observer.IncDeadLetter(payload.Organization, "retry")
		return
	}

	w.archive(ctx, acker, log, data, payload, processingErr.Error(), numDelivered)
}

// archive persists the message and acks it. A failed insert leaves the
// message on the stream for a later delivery.
func (w *Worker) archive(ctx context.Context, acker dlqAcker, log *zap.Logger, data []byte, payload model.DLQPayload, lastError string, numDelivered uint64) {
	replays := int(numDelivered)
	if payload.ErrorType != apperrors.ErrorTypeRetryable {
		replays = 0
	}
	if replays > w.cfg.ReplayAttempts {
		replays = w.cfg.ReplayAttempts
	}

	letter := &model.DeadLetter{
		OrganizationID:  payload.Organization,
		SourceSubject:   payload.SourceSubject,
		ErrorType:       payload.ErrorType,
		LastError:       lastError,
		RetryCount:      int(payload.RetryCount) + replays,
		EventTimestamp:  payload.Timestamp,
		DLQPayload:      datatypes.JSON(data),
		OriginalPayload: datatypes.JSON(payload.OriginalPayload),
	}

	if err := w.store.Save(ctx, letter); err != nil {
		delay := calculateBackoffDelay(int(numDelivered), w.cfg.BaseDelay, w.cfg.MaxDelay)
		log.Error("Failed to archive DLQ message, retrying later", zap.Error(err), zap.Duration("delay", delay))
		if nakErr := acker.NakWithDelay(delay); nakErr != nil {
			log.Error("Failed to NAK DLQ message after archive error", zap.Error(nakErr))
		}
		observer.IncDeadLetter(payload.Organization, "archive_failed")
		return
	}

	log.Warn("DLQ message archived", zap.String("last_error", lastError), zap.Int("retry_count", letter.RetryCount))
	if ackErr := acker.Ack(); ackErr != nil {
		log.Error("Failed to ACK archived DLQ message", zap.Error(ackErr))
	}
	observer.IncDeadLetter(payload.Organization, "archived")
}

// calculateBackoffDelay doubles baseDelay per attempt, capped at maxDelay.
func calculateBackoffDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 1 {
		return baseDelay
	}

	delay := baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

// --- Ants Logger Adapter ---

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
