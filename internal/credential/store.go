package credential

import (
	"context"
	"time"

	id "civitas/pkg/domain"
)

// Store is pure ledger I/O. Authorization and precondition checks belong in
// the service; stores only enforce the structural invariants they can state
// as constraints (id allocation, owner uniqueness).
//
// Lookups return sentinel.ErrNotFound (wrapped or bare) for missing rows.
type Store interface {
	// Reads.
	Get(ctx context.Context, credentialID id.CredentialID) (Credential, error)
	Counters(ctx context.Context) (Counters, error)
	BalanceOf(ctx context.Context, account id.AccountID) (int, error)
	CredentialsOf(ctx context.Context, account id.AccountID) ([]Credential, error)
	ListAll(ctx context.Context) ([]Credential, error)
	Approved(ctx context.Context, credentialID id.CredentialID) (id.AccountID, error)
	IsOperator(ctx context.Context, owner, operator id.AccountID) (bool, error)
	Receiver(ctx context.Context, account id.AccountID) (string, error)

	// Mutations. Each is atomic against the whole ledger: either through the
	// memory store's mutex or a surrounding SQL transaction in context.
	Mint(ctx context.Context, to id.AccountID, mintedAt time.Time) (Credential, error)
	Burn(ctx context.Context, credentialID id.CredentialID) error
	Transfer(ctx context.Context, from, to id.AccountID, credentialID id.CredentialID) error
	SetApproval(ctx context.Context, credentialID id.CredentialID, spender id.AccountID) error
	SetOperator(ctx context.Context, owner, operator id.AccountID, approved bool) error
	SetReceiver(ctx context.Context, account id.AccountID, endpoint string) error
}

// Tx provides the transactional boundary for ledger mutations. The Postgres
// implementation opens a SQL transaction and threads it through the context;
// the in-memory implementation takes a coarse lock. Either way a mutation
// and its audit record commit or abort together.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
