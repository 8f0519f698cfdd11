package eligibility

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civitas/internal/eligibility/metrics"
	"civitas/internal/policy"
	"civitas/internal/stakelock"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/sentinel"
	"civitas/pkg/requestcontext"
)

// LockSource is the read side of the lock ledger the evaluator consumes.
// A missing lock is reported as sentinel.ErrNotFound and evaluates to zero.
type LockSource interface {
	Get(ctx context.Context, account id.AccountID) (stakelock.Lock, error)
}

// Snapshot is one account's eligibility at a single instant.
type Snapshot struct {
	Account   id.AccountID `json:"account"`
	Eligible  bool         `json:"eligible"`
	Balance   int64        `json:"balance"`
	Threshold int64        `json:"threshold"`
	AsOf      time.Time    `json:"as_of"`
}

// Curve is a projected decay line for display.
type Curve struct {
	Account      id.AccountID `json:"account"`
	VestingStart *time.Time   `json:"vesting_start,omitempty"`
	Points       []Point      `json:"points"`
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithThreshold(threshold int64) Option {
	return func(s *Service) { s.threshold = threshold }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service evaluates decayed balances against the issuance threshold. Fresh
// evaluations are authoritative and feed issuance gating; the cached path
// exists only for the public display endpoint.
type Service struct {
	locks     LockSource
	cache     Cache
	threshold int64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func New(locks LockSource, opts ...Option) (*Service, error) {
	if locks == nil {
		return nil, errors.New("lock source is required")
	}

	s := &Service{
		locks:     locks,
		cache:     NewMemoryCache(policy.EligibilityCacheTTL),
		threshold: policy.DefaultEligibilityThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.threshold < 0 {
		return nil, errors.New("threshold must not be negative")
	}
	return s, nil
}

// Threshold returns the configured issuance threshold in stake base units.
func (s *Service) Threshold() int64 {
	return s.threshold
}

// Evaluate computes a fresh snapshot at the request instant. Issuance and
// revocation decisions go through here; the cache is written but never read.
func (s *Service) Evaluate(ctx context.Context, account id.AccountID) (Snapshot, error) {
	start := time.Now()
	defer s.metrics.ObserveEvaluate(start)

	if account.IsZero() {
		return Snapshot{}, dErrors.New(dErrors.CodeZeroAccount, "account must not be zero")
	}

	lock, err := s.lookup(ctx, account)
	if err != nil {
		return Snapshot{}, err
	}

	at := requestcontext.Now(ctx)
	snapshot := Snapshot{
		Account:   account,
		Eligible:  IsEligible(lock, at, s.threshold),
		Balance:   DecayedBalance(lock, at),
		Threshold: s.threshold,
		AsOf:      at,
	}
	s.metrics.IncrementEvaluations(snapshot.Eligible)
	s.cache.Set(ctx, account, snapshot)
	return snapshot, nil
}

// EvaluateCached serves display reads. A cached snapshot may lag by up to the
// cache TTL; callers that gate on the result must use Evaluate instead.
func (s *Service) EvaluateCached(ctx context.Context, account id.AccountID) (Snapshot, error) {
	if account.IsZero() {
		return Snapshot{}, dErrors.New(dErrors.CodeZeroAccount, "account must not be zero")
	}

	if snapshot, ok := s.cache.Get(ctx, account); ok {
		s.metrics.IncrementCacheHits()
		return snapshot, nil
	}
	s.metrics.IncrementCacheMisses()
	return s.Evaluate(ctx, account)
}

// Project samples the account's decay curve at the request instant. The
// sample count is clamped to the policy bounds; zero selects the default.
func (s *Service) Project(ctx context.Context, account id.AccountID, points int) (Curve, error) {
	if account.IsZero() {
		return Curve{}, dErrors.New(dErrors.CodeZeroAccount, "account must not be zero")
	}
	if points <= 0 {
		points = policy.ProjectionDefaultPoints
	}
	if points > policy.ProjectionMaxPoints {
		points = policy.ProjectionMaxPoints
	}

	lock, err := s.lookup(ctx, account)
	if err != nil {
		return Curve{}, err
	}

	at := requestcontext.Now(ctx)
	curve := Curve{Account: account, Points: Projection(lock, at, points)}
	if start, ok := VestingStart(lock, at); ok {
		curve.VestingStart = &start
	}
	return curve, nil
}

// Invalidate drops the account's cached snapshot. The lock service calls this
// after every mutation so display reads converge promptly.
func (s *Service) Invalidate(ctx context.Context, account id.AccountID) {
	s.cache.Invalidate(ctx, account)
}

func (s *Service) lookup(ctx context.Context, account id.AccountID) (stakelock.Lock, error) {
	lock, err := s.locks.Get(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return stakelock.Lock{}, nil
		}
		s.logger.ErrorContext(ctx, "lock lookup failed", "account", account, "error", err)
		return stakelock.Lock{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lock")
	}
	return lock, nil
}
