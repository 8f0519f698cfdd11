// Package consumer wraps the franz-go group consumer behind a small handler
// interface so audit materialization stays independent of the Kafka client.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes consumed messages. Returning an error stops the consumer;
// handlers that want to skip a poison message log it and return nil.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer polls a consumer group and dispatches records to a handler.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

// New joins the consumer group for the given topics. Returns nil when no
// brokers are configured.
func New(brokers []string, group string, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until the context is cancelled. Each record is handled and
// committed individually; a handler error aborts the loop before commit so
// the record is redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				c.logger.ErrorContext(ctx, "kafka fetch error",
					"topic", fe.Topic,
					"error", fe.Err,
				)
			}
		}

		var handleErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handleErr != nil {
				return
			}
			msg := &Message{
				Topic:     record.Topic,
				Key:       record.Key,
				Value:     record.Value,
				Timestamp: record.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				handleErr = fmt.Errorf("handle %s: %w", record.Topic, err)
				return
			}
			if err := c.client.CommitRecords(ctx, record); err != nil {
				handleErr = fmt.Errorf("commit %s: %w", record.Topic, err)
			}
		})
		if handleErr != nil {
			return handleErr
		}
	}
}
