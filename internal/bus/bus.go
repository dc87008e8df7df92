// Package bus carries inbound events from the HTTP ingest to the processor
// over an in-process watermill pub/sub.
package bus

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TopicEvents carries raw inbound event payloads.
const TopicEvents = "notifier.events"

// MetadataRequestID is the message metadata key holding the ingest request id.
const MetadataRequestID = "request_id"

// Bus pairs a watermill router with the pub/sub it consumes from.
type Bus struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	runOnce sync.Once
}

// NewInMemoryBus builds a bus on a go channel pub/sub. The subscriber acks one
// message before receiving the next, so handlers run one event at a time.
func NewInMemoryBus(logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1024}, logger)

	r, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new watermill router")
	}
	return &Bus{
		Router:     r,
		Publisher:  pubsub,
		Subscriber: pubsub,
	}, nil
}

// AddHandler subscribes handler to topic. Call before Run.
func (b *Bus) AddHandler(name, topic string, handler func(*message.Message) error) {
	b.Router.AddNoPublisherHandler(name, topic, b.Subscriber, handler)
}

// Publish queues a raw event payload and returns the message id.
func (b *Bus) Publish(payload []byte, requestID string) (string, error) {
	id := uuid.NewString()
	msg := message.NewMessage(id, payload)
	if requestID != "" {
		msg.Metadata.Set(MetadataRequestID, requestID)
	}
	if err := b.Publisher.Publish(TopicEvents, msg); err != nil {
		return "", errors.Wrap(err, "publish event")
	}
	return id, nil
}

// Running is closed once the router has started its handlers.
func (b *Bus) Running() chan struct{} {
	return b.Router.Running()
}

// Run starts the router and blocks until ctx is cancelled. Later calls are
// no-ops.
func (b *Bus) Run(ctx context.Context) error {
	var runErr error
	b.runOnce.Do(func() {
		go func() {
			<-ctx.Done()
			_ = b.Router.Close()
		}()
		runErr = b.Router.Run(ctx)
	})
	return runErr
}
