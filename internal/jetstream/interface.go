package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ClientInterface is the slice of JetStream the lead engine depends on.
type ClientInterface interface {
	// SetupStream creates the stream or updates it when its core config drifted.
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer creates the durable consumer on streamName, recreating it on drift.
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// SubscribePush binds a queue subscription to an existing push consumer.
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)

	// SubscribePull binds a pull subscription to an existing durable consumer.
	SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error)

	// Subscribe listens on a core NATS subject without a stream behind it.
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)

	// Publish publishes data to subject and waits for the stream ack.
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error

	// IsConnected reports whether the underlying connection is up.
	IsConnected() bool

	// Close drains and closes the connection.
	Close()
}
