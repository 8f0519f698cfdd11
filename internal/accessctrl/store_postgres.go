package accessctrl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "civitas/pkg/domain"
	"civitas/pkg/platform/sentinel"
)

// PostgresStore persists the role assignment in a single-row table.
// This store is pure I/O; authorization logic belongs in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context) (Roles, error) {
	query := `
		SELECT owner_account, controller_account, updated_at
		FROM roles
		WHERE singleton = TRUE
	`
	var (
		roles                Roles
		ownerRaw, controlRaw string
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&ownerRaw, &controlRaw, &roles.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Roles{}, sentinel.ErrNotFound
		}
		return Roles{}, fmt.Errorf("get roles: %w", err)
	}

	if roles.Owner, err = id.ParseAccountID(ownerRaw); err != nil {
		return Roles{}, fmt.Errorf("stored owner account is invalid: %w", err)
	}
	if roles.Controller, err = id.ParseAccountID(controlRaw); err != nil {
		return Roles{}, fmt.Errorf("stored controller account is invalid: %w", err)
	}
	return roles, nil
}

func (s *PostgresStore) Save(ctx context.Context, roles Roles) error {
	query := `
		INSERT INTO roles (singleton, owner_account, controller_account, updated_at)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			owner_account = EXCLUDED.owner_account,
			controller_account = EXCLUDED.controller_account,
			updated_at = EXCLUDED.updated_at
	`
	updatedAt := roles.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, roles.Owner.String(), roles.Controller.String(), updatedAt)
	if err != nil {
		return fmt.Errorf("save roles: %w", err)
	}
	return nil
}
