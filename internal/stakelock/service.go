package stakelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civitas/internal/policy"
	"civitas/internal/staketoken"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/audit"
	"civitas/pkg/platform/sentinel"
	"civitas/pkg/requestcontext"
)

// Tx is the transactional boundary for lock mutations.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CacheInvalidator drops an account's cached eligibility snapshot after a
// lock mutation so display reads never show a stale balance longer than one
// request.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, account id.AccountID)
}

// Service manages stake locks. Locks are self-service: the caller is always
// the lock's own account. Stake moves through the token port before the lock
// row commits; a failed persist refunds the pull best-effort.
type Service struct {
	store   Store
	tx      Tx
	stake   staketoken.TokenService
	asset   id.Asset
	custody id.AccountID

	logger         *slog.Logger
	auditPublisher audit.Publisher
	cache          CacheInvalidator
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithCacheInvalidator wires the eligibility cache invalidation hook.
func WithCacheInvalidator(cache CacheInvalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func New(store Store, tx Tx, stake staketoken.TokenService, asset id.Asset, custody id.AccountID, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("lock store is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if stake == nil {
		return nil, fmt.Errorf("stake token service is required")
	}
	if !asset.IsValid() {
		return nil, fmt.Errorf("stake asset %q is invalid", asset)
	}
	if custody.IsZero() {
		return nil, fmt.Errorf("custody account is required")
	}

	svc := &Service{
		store:   store,
		tx:      tx,
		stake:   stake,
		asset:   asset,
		custody: custody,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create opens a lock for the caller. The caller must hold no lock in any
// state: an expired but unwithdrawn lock still blocks creation.
func (s *Service) Create(ctx context.Context, caller id.AccountID, amount int64, maturity time.Time) (Lock, error) {
	if caller.IsZero() {
		return Lock{}, dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	now := requestcontext.Now(ctx)

	existing, err := s.get(ctx, caller)
	if err != nil {
		return Lock{}, err
	}
	if existing.Exists() {
		return Lock{}, dErrors.New(dErrors.CodeLockActive, "account already holds a lock")
	}

	if amount <= 0 {
		return Lock{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if !maturity.After(now) {
		return Lock{}, dErrors.New(dErrors.CodeInvalidInput, "maturity must be in the future")
	}
	if maturity.After(now.Add(policy.MaxLockDuration)) {
		return Lock{}, dErrors.New(dErrors.CodeHorizonExceeded, "maturity exceeds the lock horizon")
	}

	if err := s.stake.TransferFrom(ctx, s.asset, caller, s.custody, amount); err != nil {
		return Lock{}, dErrors.Wrap(err, dErrors.CodeConflict, "stake pull failed")
	}

	lock := Lock{
		Account:   caller,
		Amount:    amount,
		Maturity:  maturity,
		CreatedAt: now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, lock); err != nil {
			return fmt.Errorf("save lock: %w", err)
		}
		return s.emit(ctx, caller, audit.EventLockCreated,
			fmt.Sprintf("amount %d maturity %s", amount, maturity.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		s.refund(ctx, caller, amount)
		return Lock{}, err
	}

	s.invalidate(ctx, caller)
	s.logger.InfoContext(ctx, "lock created",
		"account", caller,
		"amount", amount,
		"maturity", maturity,
		"request_id", requestcontext.RequestID(ctx),
	)
	return lock, nil
}

// Increase raises the lock's amount, maturity, or both. The horizon is
// anchored at the lock's creation, so repeated increases cannot roll the
// four years forward.
func (s *Service) Increase(ctx context.Context, caller id.AccountID, newAmount int64, newMaturity time.Time) (Lock, error) {
	if caller.IsZero() {
		return Lock{}, dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	now := requestcontext.Now(ctx)

	lock, err := s.get(ctx, caller)
	if err != nil {
		return Lock{}, err
	}
	switch lock.StateAt(now) {
	case StateNoLock:
		return Lock{}, dErrors.New(dErrors.CodeNoActiveLock, "account holds no lock")
	case StateExpired:
		return Lock{}, dErrors.New(dErrors.CodeLockExpired, "lock has expired")
	}

	if newAmount < lock.Amount || newMaturity.Before(lock.Maturity) {
		return Lock{}, dErrors.New(dErrors.CodeLockNotIncreased, "amount and maturity may only increase")
	}
	if newAmount == lock.Amount && newMaturity.Equal(lock.Maturity) {
		return Lock{}, dErrors.New(dErrors.CodeLockNotIncreased, "nothing to increase")
	}
	if newMaturity.After(lock.CreatedAt.Add(policy.MaxLockDuration)) {
		return Lock{}, dErrors.New(dErrors.CodeHorizonExceeded, "maturity exceeds the lock horizon")
	}

	delta := newAmount - lock.Amount
	if delta > 0 {
		if err := s.stake.TransferFrom(ctx, s.asset, caller, s.custody, delta); err != nil {
			return Lock{}, dErrors.Wrap(err, dErrors.CodeConflict, "stake pull failed")
		}
	}

	updated := lock
	updated.Amount = newAmount
	updated.Maturity = newMaturity
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, updated); err != nil {
			return fmt.Errorf("save lock: %w", err)
		}
		return s.emit(ctx, caller, audit.EventLockIncreased,
			fmt.Sprintf("amount %d maturity %s", newAmount, newMaturity.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		if delta > 0 {
			s.refund(ctx, caller, delta)
		}
		return Lock{}, err
	}

	s.invalidate(ctx, caller)
	s.logger.InfoContext(ctx, "lock increased",
		"account", caller,
		"amount", newAmount,
		"maturity", newMaturity,
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// Withdraw returns the staked amount and deletes the lock. Only an expired
// lock can be withdrawn; the deleted record leaves the account free to lock
// again.
func (s *Service) Withdraw(ctx context.Context, caller id.AccountID) (int64, error) {
	if caller.IsZero() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	now := requestcontext.Now(ctx)

	lock, err := s.get(ctx, caller)
	if err != nil {
		return 0, err
	}
	switch lock.StateAt(now) {
	case StateNoLock:
		return 0, dErrors.New(dErrors.CodeNoActiveLock, "account holds no lock")
	case StateActive:
		return 0, dErrors.New(dErrors.CodeLockNotExpired, "lock has not reached maturity")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, caller); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNoActiveLock, "account holds no lock")
			}
			return fmt.Errorf("delete lock: %w", err)
		}
		return s.emit(ctx, caller, audit.EventLockWithdrawn,
			fmt.Sprintf("amount %d", lock.Amount))
	})
	if err != nil {
		return 0, err
	}

	if err := s.stake.Transfer(ctx, s.asset, caller, lock.Amount); err != nil {
		// The lock is gone but the stake return failed. Record the owed
		// payout durably so operators can replay it from the audit trail,
		// then surface the failure.
		if auditErr := s.emit(ctx, caller, audit.EventStakeReturnFailed,
			fmt.Sprintf("amount %d owed after withdrawal", lock.Amount)); auditErr != nil {
			s.logger.ErrorContext(ctx, "failed to record owed stake return",
				"account", caller,
				"error", auditErr,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		s.logger.ErrorContext(ctx, "stake return failed after withdrawal",
			"account", caller,
			"amount", lock.Amount,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return 0, dErrors.Wrap(err, dErrors.CodeConflict, "stake return failed")
	}

	s.invalidate(ctx, caller)
	s.logger.InfoContext(ctx, "lock withdrawn",
		"account", caller,
		"amount", lock.Amount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return lock.Amount, nil
}

// Get returns the account's lock. NoLock answers no_active_lock so callers
// can distinguish "never locked" without inspecting a zero value.
func (s *Service) Get(ctx context.Context, account id.AccountID) (Lock, error) {
	if account.IsZero() {
		return Lock{}, dErrors.New(dErrors.CodeZeroAccount, "cannot query the zero account")
	}
	lock, err := s.get(ctx, account)
	if err != nil {
		return Lock{}, err
	}
	if !lock.Exists() {
		return Lock{}, dErrors.New(dErrors.CodeNoActiveLock, "account holds no lock")
	}
	return lock, nil
}

func (s *Service) get(ctx context.Context, account id.AccountID) (Lock, error) {
	lock, err := s.store.Get(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Lock{}, nil
		}
		return Lock{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lock")
	}
	return lock, nil
}

func (s *Service) refund(ctx context.Context, account id.AccountID, amount int64) {
	if err := s.stake.Transfer(ctx, s.asset, account, amount); err != nil {
		s.logger.ErrorContext(ctx, "stake refund failed",
			"account", account,
			"amount", amount,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) invalidate(ctx context.Context, account id.AccountID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, account)
	}
}

func (s *Service) emit(ctx context.Context, account id.AccountID, action audit.AuditEvent, reason string) error {
	if s.auditPublisher == nil {
		return nil
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Account:   account,
		Action:    string(action),
		Reason:    reason,
		ActorID:   account.String(),
		RequestID: requestcontext.RequestID(ctx),
		IP:        requestcontext.ClientIP(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit record failed")
	}
	return nil
}
