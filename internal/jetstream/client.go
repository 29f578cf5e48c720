package jetstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

const defaultPublishTimeout = 5 * time.Second

// Client wraps NATS JetStream functionality
type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient connects to NATS, reconnecting forever, and opens a JetStream context.
func NewClient(url, name string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %w", apperrors.ErrNATS, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: failed to create JetStream context: %w", apperrors.ErrNATS, err)
	}

	return &Client{
		nc: nc,
		js: js,
	}, nil
}

// SetupStream ensures the stream exists with the given configuration
func (c *Client) SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error {
	log := logger.FromContext(ctx).With(zap.String("stream", streamConfig.Name))

	stream, err := c.js.StreamInfo(streamConfig.Name, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamConfig.Name, err)
	}

	if stream == nil {
		if _, err = c.js.AddStream(streamConfig, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to add stream '%s': %w", streamConfig.Name, err)
		}
		log.Info("Created stream", zap.Strings("subjects", streamConfig.Subjects))
		return nil
	}

	if utils.StreamConfigEqual(stream.Config, *streamConfig) {
		log.Debug("Stream up to date")
		return nil
	}

	if _, err = c.js.UpdateStream(streamConfig, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to update stream '%s': %w", streamConfig.Name, err)
	}
	log.Info("Updated stream",
		zap.Strings("subjects", streamConfig.Subjects),
		zap.Strings("previous_subjects", stream.Config.Subjects),
	)
	return nil
}

// SetupConsumer ensures the consumer exists with the given configuration for a specific stream
func (c *Client) SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error {
	log := logger.FromContext(ctx).With(zap.String("stream", streamName), zap.String("consumer", consumerConfig.Durable))

	consumer, err := c.js.ConsumerInfo(streamName, consumerConfig.Durable, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("failed to get consumer info for stream '%s', consumer '%s': %w", streamName, consumerConfig.Durable, err)
	}

	if consumer == nil {
		if _, err = c.js.AddConsumer(streamName, consumerConfig, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to add consumer '%s' to stream '%s': %w", consumerConfig.Durable, streamName, err)
		}
		log.Info("Created consumer",
			zap.String("queue_group", consumerConfig.DeliverGroup),
			zap.Strings("filter_subjects", consumerConfig.FilterSubjects),
		)
		return nil
	}

	if utils.ConsumerConfigEqual(consumer.Config, *consumerConfig) {
		log.Debug("Consumer up to date")
		return nil
	}

	// Push consumers cannot change their deliver subject in place.
	log.Warn("Consumer config mismatch, recreating",
		zap.Strings("filter_subjects", consumerConfig.FilterSubjects),
		zap.Strings("previous_filter_subjects", consumer.Config.FilterSubjects),
	)
	if err = c.js.DeleteConsumer(streamName, consumerConfig.Durable, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to delete existing consumer '%s' from stream '%s' for update: %w", consumerConfig.Durable, streamName, err)
	}
	if _, err = c.js.AddConsumer(streamName, consumerConfig, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to re-add consumer '%s' to stream '%s' during update: %w", consumerConfig.Durable, streamName, err)
	}
	log.Info("Recreated consumer")
	return nil
}

// SubscribePush creates a push-based consumer subscription
func (c *Client) SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.js.QueueSubscribe(
		subject,
		group,
		handler,
		nats.Bind(stream, consumer),
		nats.ManualAck(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to subscribe consumer '%s': %w", apperrors.ErrNATS, consumer, err)
	}

	return sub, nil
}

// SubscribePull creates a pull-based consumer subscription
func (c *Client) SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error) {
	sub, err := c.js.PullSubscribe(subject, consumer, nats.Bind(streamName, consumer))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pull subscription for stream '%s', consumer '%s': %w", apperrors.ErrNATS, streamName, consumer, err)
	}
	return sub, nil
}

// Subscribe creates a plain core NATS subscription, outside JetStream.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to subscribe to %s: %w", apperrors.ErrNATS, subject, err)
	}
	return sub, nil
}

// Publish publishes a message to a subject with optional headers. A
// "Nats-Msg-Id" header enables stream-side deduplication.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: failed to publish to %s: %w", apperrors.ErrNATS, subject, err)
	}
	return nil
}

// IsConnected reports whether the NATS connection is currently established.
func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Close drains the connection so in-flight publishes complete.
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		logger.Log.Warn("NATS drain failed, closing", zap.Error(err))
		c.nc.Close()
	}
}
