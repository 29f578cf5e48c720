package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	"gitlab.com/smilefunnel/api/lead-engine/internal/jetstream"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

const consumerTypeLeads = "leads"

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Message processed successfully, ACK it
	ActionNak                          // DLQ failure, NAK immediately
	ActionNakDelay                     // Retryable error, NAK with calculated delay
	ActionDLQ                          // Max retries reached or fatal error, publish to DLQ then ACK
)

// messageAcker is the part of *nats.Msg the consumer settles deliveries with.
type messageAcker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
}

// LeadConsumer is a durable push consumer for lead submissions and status
// changes. The organization is the last token of every subject.
type LeadConsumer struct {
	client       jetstream.ClientInterface
	router       RouterInterface
	cfg          config.ConsumerNatsConfig
	dlqSubject   string
	ctx          context.Context
	cancel       context.CancelFunc
	sub          *nats.Subscription
	subjectsSub  string
	consumerType string
}

// NewLeadConsumer creates the consumer. dlqSubject is the base DLQ subject;
// the organization ID is appended when publishing.
func NewLeadConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, dlqSubject string) *LeadConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.Named("lead_consumer").With(zap.String("consumer", cfg.Consumer))
	ctx = logger.WithLogger(ctx, log)

	return &LeadConsumer{
		client:       client,
		router:       router,
		cfg:          cfg,
		dlqSubject:   dlqSubject,
		ctx:          ctx,
		cancel:       cancel,
		subjectsSub:  "v1.leads.>",
		consumerType: consumerTypeLeads,
	}
}

// modifySubjects derives the stream subjects (every organization) and the
// consumer filter subjects (one organization, or every one when organizationID is empty).
func modifySubjects(subjects []string, organizationID string) (streamSubjects, consumerSubjects []string) {
	scope := organizationID
	if scope == "" {
		scope = "*"
	}
	for _, subject := range subjects {
		subject = strings.TrimSuffix(strings.TrimSuffix(subject, ".*"), ".>")
		streamSubjects = append(streamSubjects, subject+".*")
		consumerSubjects = append(consumerSubjects, subject+"."+scope)
	}
	return streamSubjects, consumerSubjects
}

// organizationFromSubject returns the token after a known base subject, the
// organization ID, or "" when the subject is not organization scoped.
func organizationFromSubject(subject string) string {
	base, found := model.MapToBaseEventType(subject)
	if !found || string(base) == subject {
		return ""
	}
	return subject[len(base)+1:]
}

// Setup creates or updates the stream and the durable consumer.
func (c *LeadConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up LeadConsumer...", zap.String("stream", c.cfg.Stream))

	streamSubjects, consumerSubjects := modifySubjects(c.cfg.SubjectList, c.cfg.Organization)

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(c.cfg.MaxAge*24) * time.Hour,
		// Submissions carry a Nats-Msg-Id; a retried publish within the window is dropped.
		Duplicates: 2 * time.Minute,
	}
	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		log.Error("Failed to setup lead stream", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup lead stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: consumerSubjects,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup lead consumer", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup lead consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("LeadConsumer setup complete", zap.Strings("filter_subjects", consumerSubjects))
	return nil
}

// Start subscribes to the consumer's deliveries.
func (c *LeadConsumer) Start() error {
	log := logger.FromContext(c.ctx)
	log.Info("Starting LeadConsumer subscription...", zap.String("stream", c.cfg.Stream))

	sub, err := c.client.SubscribePush(c.subjectsSub, c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe lead consumer", zap.Error(err),
			zap.String("stream", c.cfg.Stream),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe lead consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("LeadConsumer subscribed successfully")
	return nil
}

// Stop drains the subscription so in-flight messages finish.
func (c *LeadConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	log.Info("Stopping LeadConsumer...")
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining lead subscription", zap.Error(err))
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("LeadConsumer stopped")
}

// determineAckNakAction decides the fate of a message based on processing result and delivery count.
// It returns the action to take (ACK, NAK_DELAY, DLQ) and the delay duration if applicable.
func determineAckNakAction(
	processingErr error,
	numDelivered uint64,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {
	if processingErr == nil {
		return ActionAck, 0
	}

	// Anything not explicitly retryable is fatal.
	if !apperrors.IsRetryable(processingErr) || numDelivered >= uint64(maxDeliver) {
		return ActionDLQ, 0
	}

	delay = nakBaseDelay
	if numDelivered > 1 {
		delay = nakBaseDelay * (1 << (numDelivered - 1))
	}
	if delay > nakMaxDelay || delay <= 0 {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

func (c *LeadConsumer) handleMessage(msg *nats.Msg) {
	startTime := utils.Now()
	eventType, _ := model.MapToBaseEventType(msg.Subject)
	organizationID := organizationFromSubject(msg.Subject)

	defer func() {
		observer.ObserveEventProcessingDuration(string(eventType), organizationID, c.consumerType, time.Since(startTime))

		if r := recover(); r != nil {
			logger.FromContext(c.ctx).Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("subject", msg.Subject),
				zap.Duration("duration", time.Since(startTime)),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(string(eventType), organizationID, c.consumerType)
			observer.IncEventProcessingAction(string(eventType), organizationID, c.consumerType, "panic_nak", "panic")
			if nakErr := msg.Nak(); nakErr != nil {
				logger.FromContext(c.ctx).Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	metadata, err := msg.Metadata()
	if err != nil {
		logger.FromContext(c.ctx).Error("Failed to read message metadata", zap.Error(err), zap.String("subject", msg.Subject))
		if nakErr := msg.Nak(); nakErr != nil {
			logger.FromContext(c.ctx).Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction(string(eventType), organizationID, c.consumerType, "nak_metadata_error", "metadata")
		return
	}

	var msgID string
	if msg.Header != nil {
		msgID = msg.Header.Get("Nats-Msg-Id")
	}
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}

	c.process(msg, msg.Data, &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   msg.Subject,
		OrganizationID:   organizationID,
	}, startTime)
}

// process routes one delivery and settles it. Split from handleMessage so
// the ack/nak/DLQ flow is testable without a live JetStream delivery.
func (c *LeadConsumer) process(acker messageAcker, data []byte, md *model.MessageMetadata, startTime time.Time) {
	eventType, found := model.MapToBaseEventType(md.MessageSubject)
	log := logger.FromContext(c.ctx).With(
		zap.String("nats_message_id", md.MessageID),
		zap.Uint64("stream_sequence", md.StreamSequence),
		zap.String("subject", md.MessageSubject),
		zap.String("organization_id", md.OrganizationID),
	)

	if !found || md.OrganizationID == "" {
		// Unroutable subjects never become valid; park them in the DLQ.
		log.Warn("Unknown event subject")
		observer.IncEventProcessingAction(string(eventType), md.OrganizationID, c.consumerType, "unknown_subject", "unknown_event_type")
		c.publishToDLQ(acker, log, data, md, apperrors.NewFatal(apperrors.ErrBadRequest, "unroutable subject %s", md.MessageSubject))
		return
	}

	observer.IncEventsReceived(string(eventType), md.OrganizationID, c.consumerType)
	msgCtx := logger.WithLogger(c.ctx, log)

	routingStart := utils.Now()
	processingErr := c.router.Route(msgCtx, md, data)
	observer.ObserveEventRoutingDuration(string(eventType), md.OrganizationID, c.consumerType, time.Since(routingStart))

	action, nakDelay := determineAckNakAction(processingErr, md.NumDelivered, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		log.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType), md.OrganizationID, c.consumerType)
		observer.IncEventProcessingAction(string(eventType), md.OrganizationID, c.consumerType, "ack_success", errorType)
		if ackErr := acker.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		log.Info("NAKing message with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", md.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
		)
		observer.IncEventsFailed(string(eventType), md.OrganizationID, c.consumerType)
		observer.IncEventProcessingAction(string(eventType), md.OrganizationID, c.consumerType, "nak_retry", errorType)
		if nakErr := acker.NakWithDelay(nakDelay); nakErr != nil {
			log.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionDLQ:
		observer.IncEventsFailed(string(eventType), md.OrganizationID, c.consumerType)
		c.publishToDLQ(acker, log, data, md, processingErr)
	}
}

// publishToDLQ parks a message on <dlqSubject>.<organization> and ACKs the
// original. If the DLQ publish fails the original is NAKed for redelivery.
func (c *LeadConsumer) publishToDLQ(acker messageAcker, log *zap.Logger, data []byte, md *model.MessageMetadata, processingErr error) {
	eventType, _ := model.MapToBaseEventType(md.MessageSubject)
	errorType := observer.SanitizeErrorType(processingErr.Error())

	errorTypeString := apperrors.Classify(processingErr)
	logReason := "fatal error encountered"
	if errorTypeString == apperrors.ErrorTypeRetryable {
		logReason = "max delivery attempts reached"
	}
	log.Warn("Sending message to DLQ: "+logReason,
		zap.Error(processingErr),
		zap.Uint64("num_delivered", md.NumDelivered),
		zap.Int("max_deliver", c.cfg.MaxDeliver),
	)

	payload := json.RawMessage(data)
	if !json.Valid(data) {
		quoted, _ := json.Marshal(string(data))
		payload = quoted
	}
	dlqData, marshalErr := json.Marshal(model.DLQPayload{
		SourceSubject:   md.MessageSubject,
		Organization:    md.OrganizationID,
		OriginalPayload: payload,
		Error:           processingErr.Error(),
		ErrorType:       errorTypeString,
		RetryCount:      md.NumDelivered,
		MaxRetry:        c.cfg.MaxDeliver,
		Timestamp:       utils.Now(),
	})
	if marshalErr != nil {
		log.Error("Failed to marshal DLQ payload, NAKing original message", zap.Error(marshalErr))
		observer.IncEventProcessingAction(string(eventType), md.OrganizationID, c.consumerType, "nak_dlq_marshal_fail", "dlq_marshal_fail")
		if nakErr := acker.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ marshal error", zap.Error(nakErr))
		}
		return
	}

	organization := md.OrganizationID
	if organization == "" {
		organization = "unknown"
	}
	dlqFullSubject := c.dlqSubject + "." + organization
	headers := map[string]string{"Original-Nats-Msg-Id": md.MessageID}

	if err := c.client.Publish(c.ctx, dlqFullSubject, dlqData, headers); err != nil {
		log.Error("Failed to publish message to DLQ, NAKing original message",
			zap.Error(err),
			zap.String("dlq_subject", dlqFullSubject),
		)
		observer.IncEventProcessingAction(string(eventType), md.OrganizationID, c.consumerType, "nak_dlq_publish_fail", "dlq_publish_fail")
		if nakErr := acker.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ publish error", zap.Error(nakErr))
		}
		return
	}

	log.Info("Message published to DLQ", zap.String("dlq_subject", dlqFullSubject))
	observer.IncEventProcessingAction(string(eventType), md.OrganizationID, c.consumerType, "dlq_published_ack_success", errorType)
	if ackErr := acker.Ack(); ackErr != nil {
		log.Error("Failed to ACK message after successful DLQ publish", zap.Error(ackErr))
	}
}
