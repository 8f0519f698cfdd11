package audit

import (
	"context"

	id "civitas/pkg/domain"
)

// Store persists audit events. The Postgres implementation writes to the
// transactional outbox so the event commits atomically with the ledger
// mutation that produced it; the in-memory implementation appends directly.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account id.AccountID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Publisher is the interface services emit through. Concrete publishers
// differ in delivery guarantees: compliance is synchronous fail-closed,
// security is buffered, operations is sampled fire-and-forget.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
