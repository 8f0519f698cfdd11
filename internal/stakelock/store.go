package stakelock

import (
	"context"

	id "civitas/pkg/domain"
)

// Store persists at most one lock per account. Lookups for accounts without
// a lock return sentinel.ErrNotFound; Save overwrites, Delete is the
// withdrawal terminal state.
type Store interface {
	Get(ctx context.Context, account id.AccountID) (Lock, error)
	Save(ctx context.Context, lock Lock) error
	Delete(ctx context.Context, account id.AccountID) error
	ListAll(ctx context.Context) ([]Lock, error)
}
