package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	"gitlab.com/smilefunnel/api/lead-engine/internal/ingestion"
	"gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/handler"
	"gitlab.com/smilefunnel/api/lead-engine/internal/jetstream"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// Processor orchestrates lead event processing
type Processor struct {
	service     handler.LeadService
	jsClient    jetstream.ClientInterface
	consumer    ingestion.ConsumerInterface
	eventRouter ingestion.RouterInterface
	leadHandler handler.EventHandlerInterface
}

// NewProcessor creates a new processor with all components wired up
func NewProcessor(service handler.LeadService, jsClient jetstream.ClientInterface, cfg *config.Config) *Processor {
	router := ingestion.NewRouter()

	return &Processor{
		service:     service,
		jsClient:    jsClient,
		consumer:    ingestion.NewLeadConsumer(jsClient, router, cfg.NATS.Leads, cfg.NATS.DLQSubject),
		eventRouter: router,
		leadHandler: handler.NewLeadHandler(service),
	}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers the lead handlers and sets up the consumer
func (p *Processor) Setup() error {
	p.eventRouter.Register(model.V1LeadSubmissions, p.leadHandler.HandleEvent)
	p.eventRouter.Register(model.V1LeadStatusChanges, p.leadHandler.HandleEvent)

	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("version", eventType.GetVersion()),
			zap.String("subject", metadata.MessageSubject),
		)
		return nil
	})

	if err := p.consumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup lead consumer: %w", err)
	}

	logger.Log.Info("Processor setup complete")
	return nil
}

// Start starts the lead consumer
func (p *Processor) Start() error {
	logger.Log.Info("Starting lead event processor...")

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := p.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start lead consumer: %w", err)
	}

	logger.Log.Info("Lead consumer started successfully")
	return nil
}

// Stop drains the lead consumer
func (p *Processor) Stop() {
	logger.Log.Info("Stopping lead event processor...")
	p.consumer.Stop()
	logger.Log.Info("Lead consumer stopped")
}
