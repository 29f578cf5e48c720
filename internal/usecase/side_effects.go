package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// Side effect kinds, used as metric labels.
const (
	SideEffectIncrementSubmissions = "increment_submission_count"
	SideEffectNotifyLeadCreated    = "notify_lead_created"
)

const defaultSideEffectTimeout = 10 * time.Second

// SideEffectTask is one fire-and-forget follow-up of a committed write.
type SideEffectTask struct {
	Ctx            context.Context // detached from the request; carries logger and tenant
	Kind           string
	OrganizationID string
	LeadID         string
	Run            func(ctx context.Context) error
}

// ISideEffectWorker runs side effect tasks off the request path.
type ISideEffectWorker interface {
	SubmitTask(task SideEffectTask) error
	Stop()
}

// SideEffectWorker runs tasks on an ants pool. A task failure is logged and
// counted; it never reaches the caller that submitted it.
type SideEffectWorker struct {
	pool       *ants.PoolWithFunc
	cfg        config.WorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure SideEffectWorker implements ISideEffectWorker
var _ ISideEffectWorker = (*SideEffectWorker)(nil)

// NewSideEffectWorker creates and initializes the side effect pool.
func NewSideEffectWorker(cfg config.WorkerPoolConfig, baseLogger *zap.Logger) (*SideEffectWorker, error) {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultSideEffectTimeout
	}
	worker := &SideEffectWorker{
		cfg:        cfg,
		baseLogger: baseLogger.Named("side_effects"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(SideEffectTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.process(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			worker.baseLogger.Error("Panic recovered in side effect worker", zap.Any("panic_error", p), zap.Stack("stack"))
			observer.IncSideEffectProcessed("unknown", "panic")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create side effect worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Side effect worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
		zap.Duration("task_timeout", cfg.TaskTimeout),
	)
	return worker, nil
}

// SubmitTask hands task to the pool and returns without waiting. When every
// worker is busy the task is dropped with ants.ErrPoolOverload.
func (w *SideEffectWorker) SubmitTask(task SideEffectTask) error {
	if task.Ctx == nil {
		task.Ctx = context.Background()
	}
	observer.IncSideEffectSubmitted(task.Kind)

	if err := w.pool.Invoke(task); err != nil {
		w.baseLogger.Warn("Failed to submit side effect task",
			zap.String("kind", task.Kind),
			zap.String("lead_id", task.LeadID),
			zap.String("organization_id", task.OrganizationID),
			zap.Error(err),
		)
		observer.IncSideEffectProcessed(task.Kind, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("side effect pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke side effect task: %w", err)
	}
	observer.SetSideEffectPoolRunning(w.pool.Running())
	return nil
}

func (w *SideEffectWorker) process(task SideEffectTask) {
	log := logger.FromContextOr(task.Ctx, w.baseLogger).With(
		zap.String("side_effect", task.Kind),
		zap.String("lead_id", task.LeadID),
	)

	ctx, cancel := context.WithTimeout(task.Ctx, w.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	status := "success"
	if err := task.Run(ctx); err != nil {
		status = "failure"
		log.Warn("Side effect failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	} else {
		log.Debug("Side effect completed", zap.Duration("duration", time.Since(start)))
	}

	observer.ObserveSideEffectDuration(task.Kind, time.Since(start))
	observer.IncSideEffectProcessed(task.Kind, status)
}

// Stop waits for running tasks up to timeout, then releases the pool.
func (w *SideEffectWorker) Stop() {
	if w.pool == nil {
		return
	}
	w.baseLogger.Info("Releasing side effect worker pool", zap.Int("running", w.pool.Running()), zap.Int("waiting", w.pool.Waiting()))
	start := time.Now()
	if err := w.pool.ReleaseTimeout(w.cfg.TaskTimeout); err != nil {
		w.baseLogger.Warn("Side effect pool did not drain in time", zap.Error(err))
	}
	w.baseLogger.Info("Side effect worker pool released", zap.Duration("duration", time.Since(start)))
}
