package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "civitas/pkg/domain"
	audit "civitas/pkg/platform/audit"
	txcontext "civitas/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the same transaction as the
// ledger mutation and relayed to Kafka by the outbox relay. Kafka is the
// source of truth; the audit_events table is a queryable materialization.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event so the consumer can materialize without translation.
type outboxPayload struct {
	ID        string `json:"ID"`
	Category  string `json:"Category"`
	Timestamp string `json:"Timestamp"`
	Account   string `json:"Account,omitempty"`
	Subject   string `json:"Subject"`
	Action    string `json:"Action"`
	Decision  string `json:"Decision,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	ActorID   string `json:"ActorID,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	IP        string `json:"IP,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
// When a ledger transaction is in context the insert joins it, so the event
// commits atomically with the mutation it records.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// The eventCategories map is the source of truth for routing.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		ActorID:   event.ActorID,
		RequestID: event.RequestID,
		IP:        event.IP,
	}
	if !event.Account.IsZero() {
		payload.Account = event.Account.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.Account.IsZero() {
		aggregateType = "account"
		aggregateID = event.Account.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, topic, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		category.Topic(),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// OutboxEntry is a pending outbox row awaiting relay to Kafka.
type OutboxEntry struct {
	ID      uuid.UUID
	Topic   string
	Payload []byte
}

// FetchUnpublished returns up to limit pending outbox entries in insertion
// order. SKIP LOCKED lets multiple relay instances share the table without
// double-publishing.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, topic, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.Topic, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPublished stamps an outbox entry after a successful Kafka produce.
func (s *Store) MarkPublished(ctx context.Context, entryID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = $2`,
		time.Now(), entryID,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}

// AppendWithID materializes a consumed audit event into the audit_events
// table with the ID assigned at outbox time. Duplicate deliveries are
// ignored via ON CONFLICT DO NOTHING, making the consumer idempotent.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, account, subject, action,
			decision, reason, actor_id, request_id, ip
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	var account *string
	if !event.Account.IsZero() {
		v := event.Account.String()
		account = &v
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		account,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.ActorID,
		event.RequestID,
		event.IP,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const eventColumns = `category, timestamp, account, subject, action,
	decision, reason, actor_id, request_id, ip`

// ListByAccount returns materialized events for a specific account.
func (s *Store) ListByAccount(ctx context.Context, account id.AccountID) ([]audit.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE account = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, account.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent materialized events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event   audit.Event
			account sql.NullString
		)
		if err := rows.Scan(
			&event.Category,
			&event.Timestamp,
			&account,
			&event.Subject,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.ActorID,
			&event.RequestID,
			&event.IP,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if account.Valid {
			parsed, err := id.ParseAccountID(account.String)
			if err == nil {
				event.Account = parsed
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
