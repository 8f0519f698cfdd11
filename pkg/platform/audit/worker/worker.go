// Package worker relays audit events from the transactional outbox to Kafka.
// The relay is the only writer of published_at, so a crashed relay resumes
// exactly where it stopped; consumers handle the resulting at-least-once
// delivery idempotently.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civitas/pkg/platform/audit/store/postgres"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// KafkaProducer is the producing side of the relay.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// OutboxStore is the outbox side of the relay.
type OutboxStore interface {
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, entryID uuid.UUID) error
}

// Relay drains the outbox to Kafka.
type Relay struct {
	store    OutboxStore
	producer KafkaProducer
	logger   *slog.Logger

	pollInterval time.Duration
	batchSize    int
}

// Option configures the Relay.
type Option func(*Relay)

// WithPollInterval overrides how often the outbox is polled.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		r.pollInterval = d
	}
}

// WithBatchSize overrides how many entries each poll drains.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		r.batchSize = n
	}
}

func NewRelay(store OutboxStore, producer KafkaProducer, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		producer:     producer,
		logger:       logger,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until the context is cancelled. Publish failures are
// logged and retried on the next poll; the relay never gives up on an entry.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		entries, err := r.store.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		for _, entry := range entries {
			if err := r.producer.Produce(ctx, entry.Topic, []byte(entry.ID.String()), entry.Payload); err != nil {
				// Leave the entry unpublished; it is retried next poll.
				r.logger.WarnContext(ctx, "outbox publish failed",
					"entry_id", entry.ID,
					"topic", entry.Topic,
					"error", err,
				)
				return nil
			}
			if err := r.store.MarkPublished(ctx, entry.ID); err != nil {
				return err
			}
		}

		if len(entries) < r.batchSize {
			return nil
		}
	}
}
