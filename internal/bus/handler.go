package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/lucasnoah/codepipeline-notifier/internal/events"
)

// EventHandler processes one parsed event.
type EventHandler interface {
	Handle(ctx context.Context, env *events.Envelope) error
}

// RegisterEventHandler subscribes h to TopicEvents. Failed events are logged
// and acked: the bus does not retry.
func RegisterEventHandler(b *Bus, h EventHandler) {
	b.AddHandler("notifier-events", TopicEvents, func(msg *message.Message) error {
		logger := log.With().
			Str("message_id", msg.UUID).
			Str("request_id", msg.Metadata.Get(MetadataRequestID)).
			Logger()

		env, err := events.Parse(msg.Payload)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable event")
			return nil
		}
		ctx := logger.WithContext(msg.Context())
		if err := h.Handle(ctx, env); err != nil {
			logger.Error().Err(err).Str("source", env.Source).Str("detail_type", env.DetailType).Msg("event handling failed")
		}
		return nil
	})
}
