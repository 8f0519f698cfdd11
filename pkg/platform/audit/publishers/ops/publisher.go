// Package ops provides a sampled, fire-and-forget audit publisher for
// routine ledger activity. Emission never blocks and write failures are
// logged, not propagated.
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "civitas/pkg/platform/audit"
)

// Publisher emits operations events with best-effort semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	sampler *Sampler
}

// New creates an ops publisher. A nil sampler keeps every event.
func New(store audit.Store, logger *slog.Logger, sampler *Sampler) *Publisher {
	return &Publisher{
		store:   store,
		logger:  logger,
		sampler: sampler,
	}
}

// Emit writes an operations event if sampling keeps it. Always returns nil:
// ops audit must never fail a ledger mutation.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if p.sampler != nil && !p.sampler.ShouldSample(event.Action) {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryOperations

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "ops audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
	return nil
}

// Close is a no-op for the synchronous ops publisher.
func (p *Publisher) Close() error {
	return nil
}
