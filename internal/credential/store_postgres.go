package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "civitas/pkg/domain"
	"civitas/pkg/platform/sentinel"
	txcontext "civitas/pkg/platform/tx"
)

// PostgresStore persists the credential ledger. Mutations expect to run
// inside a transaction placed in the context by the ledger Tx runner; the
// counters row is locked FOR UPDATE, so concurrent mints serialize on it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, credentialID id.CredentialID) (Credential, error) {
	query := `
		SELECT id, owner, minted_at
		FROM credentials
		WHERE id = $1
	`
	return scanCredential(s.q(ctx).QueryRowContext(ctx, query, uint64(credentialID)))
}

func (s *PostgresStore) Counters(ctx context.Context) (Counters, error) {
	query := `
		SELECT next_id, total_supply
		FROM ledger_counters
		WHERE singleton = TRUE
	`
	var counters Counters
	err := s.q(ctx).QueryRowContext(ctx, query).Scan(&counters.NextID, &counters.TotalSupply)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Counters{}, nil
		}
		return Counters{}, fmt.Errorf("get ledger counters: %w", err)
	}
	return counters, nil
}

func (s *PostgresStore) BalanceOf(ctx context.Context, account id.AccountID) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE owner = $1`, account.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CredentialsOf(ctx context.Context, account id.AccountID) ([]Credential, error) {
	query := `
		SELECT id, owner, minted_at
		FROM credentials
		WHERE owner = $1
		ORDER BY id
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, account.String())
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Credential, error) {
	query := `
		SELECT id, owner, minted_at
		FROM credentials
		ORDER BY id
	`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows)
}

func (s *PostgresStore) Approved(ctx context.Context, credentialID id.CredentialID) (id.AccountID, error) {
	var approved sql.NullString
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT approved FROM credentials WHERE id = $1`, uint64(credentialID),
	).Scan(&approved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return id.AccountID{}, sentinel.ErrNotFound
		}
		return id.AccountID{}, fmt.Errorf("get approval: %w", err)
	}
	if !approved.Valid {
		return id.AccountID{}, nil
	}
	parsed, err := id.ParseAccountID(approved.String)
	if err != nil {
		return id.AccountID{}, fmt.Errorf("stored approval is invalid: %w", err)
	}
	return parsed, nil
}

func (s *PostgresStore) IsOperator(ctx context.Context, owner, operator id.AccountID) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM operators WHERE owner = $1 AND operator = $2)`,
		owner.String(), operator.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check operator: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Receiver(ctx context.Context, account id.AccountID) (string, error) {
	var endpoint string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT endpoint FROM receivers WHERE account = $1`, account.String(),
	).Scan(&endpoint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get receiver: %w", err)
	}
	return endpoint, nil
}

func (s *PostgresStore) Mint(ctx context.Context, to id.AccountID, mintedAt time.Time) (Credential, error) {
	q := s.q(ctx)

	// Initialize-then-lock keeps the first mint race-free: the insert is a
	// no-op once the row exists, and the SELECT takes the row lock that
	// serializes id allocation.
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_counters (singleton, next_id, total_supply)
		VALUES (TRUE, 0, 0)
		ON CONFLICT (singleton) DO NOTHING
	`)
	if err != nil {
		return Credential{}, fmt.Errorf("init ledger counters: %w", err)
	}

	var counters Counters
	err = q.QueryRowContext(ctx, `
		SELECT next_id, total_supply
		FROM ledger_counters
		WHERE singleton = TRUE
		FOR UPDATE
	`).Scan(&counters.NextID, &counters.TotalSupply)
	if err != nil {
		return Credential{}, fmt.Errorf("lock ledger counters: %w", err)
	}

	cred := Credential{
		ID:       counters.NextID,
		Owner:    to,
		MintedAt: mintedAt,
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO credentials (id, owner, minted_at)
		VALUES ($1, $2, $3)
	`, uint64(cred.ID), to.String(), mintedAt)
	if err != nil {
		return Credential{}, fmt.Errorf("insert credential: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE ledger_counters
		SET next_id = next_id + 1, total_supply = total_supply + 1
		WHERE singleton = TRUE
	`)
	if err != nil {
		return Credential{}, fmt.Errorf("bump ledger counters: %w", err)
	}
	return cred, nil
}

func (s *PostgresStore) Burn(ctx context.Context, credentialID id.CredentialID) error {
	q := s.q(ctx)

	result, err := q.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, uint64(credentialID))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}

	_, err = q.ExecContext(ctx, `
		UPDATE ledger_counters
		SET total_supply = total_supply - 1
		WHERE singleton = TRUE
	`)
	if err != nil {
		return fmt.Errorf("decrement total supply: %w", err)
	}
	return nil
}

func (s *PostgresStore) Transfer(ctx context.Context, from, to id.AccountID, credentialID id.CredentialID) error {
	// The owner predicate in the UPDATE re-checks InvalidFrom under the row
	// lock, so a racing transfer cannot apply against a stale owner.
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE credentials
		SET owner = $1, approved = NULL
		WHERE id = $2 AND owner = $3
	`, to.String(), uint64(credentialID), from.String())
	if err != nil {
		return fmt.Errorf("transfer credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transfer credential: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, uint64(credentialID),
		).Scan(&exists); err != nil {
			return fmt.Errorf("transfer credential: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) SetApproval(ctx context.Context, credentialID id.CredentialID, spender id.AccountID) error {
	var value any
	if !spender.IsZero() {
		value = spender.String()
	}
	result, err := s.q(ctx).ExecContext(ctx,
		`UPDATE credentials SET approved = $1 WHERE id = $2`, value, uint64(credentialID),
	)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetOperator(ctx context.Context, owner, operator id.AccountID, approved bool) error {
	if approved {
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO operators (owner, operator)
			VALUES ($1, $2)
			ON CONFLICT (owner, operator) DO NOTHING
		`, owner.String(), operator.String())
		if err != nil {
			return fmt.Errorf("add operator: %w", err)
		}
		return nil
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM operators WHERE owner = $1 AND operator = $2`,
		owner.String(), operator.String(),
	)
	if err != nil {
		return fmt.Errorf("remove operator: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetReceiver(ctx context.Context, account id.AccountID, endpoint string) error {
	if endpoint == "" {
		_, err := s.q(ctx).ExecContext(ctx,
			`DELETE FROM receivers WHERE account = $1`, account.String(),
		)
		if err != nil {
			return fmt.Errorf("clear receiver: %w", err)
		}
		return nil
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO receivers (account, endpoint)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET endpoint = EXCLUDED.endpoint
	`, account.String(), endpoint)
	if err != nil {
		return fmt.Errorf("set receiver: %w", err)
	}
	return nil
}

func scanCredential(row *sql.Row) (Credential, error) {
	var (
		cred     Credential
		rawID    uint64
		rawOwner string
	)
	if err := row.Scan(&rawID, &rawOwner, &cred.MintedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, sentinel.ErrNotFound
		}
		return Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	cred.ID = id.CredentialID(rawID)

	owner, err := id.ParseAccountID(rawOwner)
	if err != nil {
		return Credential{}, fmt.Errorf("stored owner is invalid: %w", err)
	}
	cred.Owner = owner
	return cred, nil
}

func scanCredentials(rows *sql.Rows) ([]Credential, error) {
	var out []Credential
	for rows.Next() {
		var (
			cred     Credential
			rawID    uint64
			rawOwner string
		)
		if err := rows.Scan(&rawID, &rawOwner, &cred.MintedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		cred.ID = id.CredentialID(rawID)
		owner, err := id.ParseAccountID(rawOwner)
		if err != nil {
			return nil, fmt.Errorf("stored owner is invalid: %w", err)
		}
		cred.Owner = owner
		out = append(out, cred)
	}
	return out, rows.Err()
}
