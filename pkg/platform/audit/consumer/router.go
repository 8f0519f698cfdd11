package consumer

import (
	"context"
	"log/slog"

	"civitas/internal/platform/kafka/consumer"
	audit "civitas/pkg/platform/audit"
)

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router fronts the audit consumer's materializer: messages on the audit
// category topics flow through, anything else is logged and committed so a
// stray subscription cannot wedge the consumer group.
type Router struct {
	topics  map[string]struct{}
	handler TopicHandler
	logger  *slog.Logger
}

// NewRouter routes every audit category topic to the given handler.
func NewRouter(logger *slog.Logger, handler TopicHandler) *Router {
	topics := make(map[string]struct{})
	for _, topic := range audit.Topics() {
		topics[topic] = struct{}{}
	}
	return &Router{
		topics:  topics,
		handler: handler,
		logger:  logger,
	}
}

// Handle forwards audit messages and skips everything else.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if _, ok := r.topics[msg.Topic]; !ok {
		r.logger.Warn("message on unexpected topic, skipping",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil // commit so the message is not redelivered
	}
	return r.handler.Handle(ctx, msg)
}
