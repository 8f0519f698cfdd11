package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civitas/internal/platform/kafka/consumer"
	id "civitas/pkg/domain"
	audit "civitas/pkg/platform/audit"
)

// MaterializeStore persists consumed events for the admin audit read.
type MaterializeStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// Materializer consumes relayed audit events and writes them to the
// audit_events table. Inserts are keyed by the outbox event ID, so redelivery
// after a consumer crash is harmless.
type Materializer struct {
	store  MaterializeStore
	logger *slog.Logger
}

func NewMaterializer(store MaterializeStore, logger *slog.Logger) *Materializer {
	return &Materializer{store: store, logger: logger}
}

// payload matches the outbox JSON structure.
type payload struct {
	ID        string `json:"ID"`
	Category  string `json:"Category"`
	Timestamp string `json:"Timestamp"`
	Account   string `json:"Account"`
	Subject   string `json:"Subject"`
	Action    string `json:"Action"`
	Decision  string `json:"Decision"`
	Reason    string `json:"Reason"`
	ActorID   string `json:"ActorID"`
	RequestID string `json:"RequestID"`
	IP        string `json:"IP"`
}

// Handle materializes one audit event. Malformed messages are logged and
// committed: a poison message must not wedge the audit pipeline.
func (m *Materializer) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		m.logger.ErrorContext(ctx, "malformed audit event key, skipping",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	var p payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		m.logger.ErrorContext(ctx, "malformed audit event payload, skipping",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	event := audit.Event{
		Category:  audit.EventCategory(p.Category),
		Subject:   p.Subject,
		Action:    p.Action,
		Decision:  p.Decision,
		Reason:    p.Reason,
		ActorID:   p.ActorID,
		RequestID: p.RequestID,
		IP:        p.IP,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	} else {
		event.Timestamp = msg.Timestamp
	}
	if p.Account != "" {
		if account, err := id.ParseAccountID(p.Account); err == nil {
			event.Account = account
		}
	}

	// Returning the error leaves the offset uncommitted, so a transient
	// database failure is retried by redelivery.
	return m.store.AppendWithID(ctx, eventID, event)
}
