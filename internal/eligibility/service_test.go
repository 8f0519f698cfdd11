package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civitas/internal/policy"
	"civitas/internal/stakelock"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/requestcontext"
)

// countingSource wraps a lock store and counts reads so cache behaviour is
// observable.
type countingSource struct {
	store *stakelock.InMemoryStore
	reads int
}

func (c *countingSource) Get(ctx context.Context, account id.AccountID) (stakelock.Lock, error) {
	c.reads++
	return c.store.Get(ctx, account)
}

type EligibilitySuite struct {
	suite.Suite

	now     time.Time
	ctx     context.Context
	alice   id.AccountID
	source  *countingSource
	service *Service
}

func TestEligibilitySuite(t *testing.T) {
	suite.Run(t, new(EligibilitySuite))
}

func (s *EligibilitySuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.alice = id.AccountID(uuid.New())
	s.source = &countingSource{store: stakelock.NewInMemoryStore()}

	var err error
	s.service, err = New(s.source, WithThreshold(1000))
	s.Require().NoError(err)
}

func (s *EligibilitySuite) lockFor(account id.AccountID, amount int64, duration time.Duration) {
	s.Require().NoError(s.source.store.Save(s.ctx, stakelock.Lock{
		Account:   account,
		Amount:    amount,
		Maturity:  s.now.Add(duration),
		CreatedAt: s.now,
	}))
}

func (s *EligibilitySuite) TestEvaluateWithoutLock() {
	snapshot, err := s.service.Evaluate(s.ctx, s.alice)
	s.Require().NoError(err)

	s.False(snapshot.Eligible)
	s.Zero(snapshot.Balance)
	s.Equal(int64(1000), snapshot.Threshold)
	s.Equal(s.now, snapshot.AsOf)
}

func (s *EligibilitySuite) TestEvaluateMaximumLock() {
	s.lockFor(s.alice, 1000, policy.MaxLockDuration)

	snapshot, err := s.service.Evaluate(s.ctx, s.alice)
	s.Require().NoError(err)

	s.True(snapshot.Eligible)
	s.Equal(int64(1000), snapshot.Balance)
	s.Equal(s.alice, snapshot.Account)
}

func (s *EligibilitySuite) TestEvaluateUsesRequestInstant() {
	s.lockFor(s.alice, 1000, policy.MaxLockDuration)

	later := requestcontext.WithTime(context.Background(), s.now.Add(2*365*24*time.Hour))
	snapshot, err := s.service.Evaluate(later, s.alice)
	s.Require().NoError(err)

	s.Equal(int64(500), snapshot.Balance)
	s.False(snapshot.Eligible)
}

func (s *EligibilitySuite) TestEvaluateBypassesCache() {
	s.lockFor(s.alice, 1000, policy.MaxLockDuration)

	_, err := s.service.Evaluate(s.ctx, s.alice)
	s.Require().NoError(err)
	_, err = s.service.Evaluate(s.ctx, s.alice)
	s.Require().NoError(err)

	s.Equal(2, s.source.reads, "gating evaluations must hit the ledger every time")
}

func (s *EligibilitySuite) TestEvaluateCachedServesSnapshot() {
	s.lockFor(s.alice, 2000, policy.MaxLockDuration)

	first, err := s.service.EvaluateCached(s.ctx, s.alice)
	s.Require().NoError(err)
	second, err := s.service.EvaluateCached(s.ctx, s.alice)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(1, s.source.reads)
}

func (s *EligibilitySuite) TestInvalidateForcesRecompute() {
	s.lockFor(s.alice, 2000, policy.MaxLockDuration)

	_, err := s.service.EvaluateCached(s.ctx, s.alice)
	s.Require().NoError(err)

	s.service.Invalidate(s.ctx, s.alice)

	_, err = s.service.EvaluateCached(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Equal(2, s.source.reads)
}

func (s *EligibilitySuite) TestZeroAccountRejected() {
	_, err := s.service.Evaluate(s.ctx, id.ZeroAccount)
	s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))

	_, err = s.service.EvaluateCached(s.ctx, id.ZeroAccount)
	s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))

	_, err = s.service.Project(s.ctx, id.ZeroAccount, 16)
	s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))
}

func (s *EligibilitySuite) TestProjectDefaultsAndClamps() {
	s.lockFor(s.alice, 1000, policy.MaxLockDuration)

	curve, err := s.service.Project(s.ctx, s.alice, 0)
	s.Require().NoError(err)
	s.Len(curve.Points, policy.ProjectionDefaultPoints+1)

	curve, err = s.service.Project(s.ctx, s.alice, policy.ProjectionMaxPoints*4)
	s.Require().NoError(err)
	s.Len(curve.Points, policy.ProjectionMaxPoints+1)

	s.Require().NotNil(curve.VestingStart)
	s.Equal(s.now, *curve.VestingStart)
}

func (s *EligibilitySuite) TestProjectWithoutLock() {
	curve, err := s.service.Project(s.ctx, s.alice, 16)
	s.Require().NoError(err)

	s.Nil(curve.Points)
	s.Nil(curve.VestingStart)
}

func (s *EligibilitySuite) TestDefaultThreshold() {
	service, err := New(s.source)
	s.Require().NoError(err)
	s.Equal(policy.DefaultEligibilityThreshold, service.Threshold())
}
