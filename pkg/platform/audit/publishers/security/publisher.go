// Package security provides a buffered, non-blocking audit publisher for
// security events (role rotations, rejected mutations, admin actions).
// Emission never blocks the calling operation; a background flusher drains
// the buffer to the store in batches.
package security

import (
	"context"
	"log/slog"
	"time"

	audit "civitas/pkg/platform/audit"
)

const (
	defaultFlushInterval = time.Second
	defaultBatchSize     = 64
)

// Publisher buffers security events and flushes them asynchronously.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	buffer *RingBuffer

	flushInterval time.Duration
	batchSize     int
	done          chan struct{}
	stopped       chan struct{}
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithBufferSize sets the ring buffer capacity.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

// WithFlushInterval overrides how often the buffer drains.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		p.flushInterval = d
	}
}

// New creates a security publisher and starts its flusher.
func New(store audit.Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		logger:        logger,
		buffer:        NewRingBuffer(0),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.run()
	return p
}

// Emit enqueues a security event. It never blocks and never fails; if the
// buffer is full the oldest event is dropped and counted.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategorySecurity
	p.buffer.Enqueue(event)
	return nil
}

func (p *Publisher) run() {
	defer close(p.stopped)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			p.flush()
			return
		case <-ticker.C:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	// Bounded context: flushing must finish even when the server context is
	// already cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.store.Append(ctx, event); err != nil {
				p.logger.ErrorContext(ctx, "security audit write failed",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}

// Close drains remaining events and stops the flusher.
func (p *Publisher) Close() error {
	close(p.done)
	<-p.stopped
	return nil
}
