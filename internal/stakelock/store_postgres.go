package stakelock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "civitas/pkg/domain"
	"civitas/pkg/platform/sentinel"
	txcontext "civitas/pkg/platform/tx"
)

// PostgresStore persists locks one row per account. The primary key on
// account is the "at most one lock" invariant.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, account id.AccountID) (Lock, error) {
	query := `
		SELECT account, amount, maturity, created_at
		FROM locks
		WHERE account = $1
	`
	var (
		lock       Lock
		rawAccount string
	)
	err := s.q(ctx).QueryRowContext(ctx, query, account.String()).
		Scan(&rawAccount, &lock.Amount, &lock.Maturity, &lock.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lock{}, sentinel.ErrNotFound
		}
		return Lock{}, fmt.Errorf("get lock: %w", err)
	}

	parsed, err := id.ParseAccountID(rawAccount)
	if err != nil {
		return Lock{}, fmt.Errorf("stored account is invalid: %w", err)
	}
	lock.Account = parsed
	return lock, nil
}

func (s *PostgresStore) Save(ctx context.Context, lock Lock) error {
	query := `
		INSERT INTO locks (account, amount, maturity, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account) DO UPDATE SET
			amount = EXCLUDED.amount,
			maturity = EXCLUDED.maturity
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		lock.Account.String(), lock.Amount, lock.Maturity, lock.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, account id.AccountID) error {
	result, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM locks WHERE account = $1`, account.String(),
	)
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Lock, error) {
	query := `
		SELECT account, amount, maturity, created_at
		FROM locks
		ORDER BY account
	`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()

	var out []Lock
	for rows.Next() {
		var (
			lock       Lock
			rawAccount string
		)
		if err := rows.Scan(&rawAccount, &lock.Amount, &lock.Maturity, &lock.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		parsed, err := id.ParseAccountID(rawAccount)
		if err != nil {
			return nil, fmt.Errorf("stored account is invalid: %w", err)
		}
		lock.Account = parsed
		out = append(out, lock)
	}
	return out, rows.Err()
}
