package accessctrl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/audit"
	auditmem "civitas/pkg/platform/audit/store/memory"
	"civitas/pkg/requestcontext"
)

type storePublisher struct {
	store audit.Store
}

func (p *storePublisher) Emit(ctx context.Context, event audit.Event) error {
	return p.store.Append(ctx, event)
}

type AccessCtrlSuite struct {
	suite.Suite
	store      *InMemoryStore
	audit      *auditmem.InMemoryStore
	service    *Service
	owner      id.AccountID
	controller id.AccountID
	stranger   id.AccountID
	ctx        context.Context
}

func TestAccessCtrlSuite(t *testing.T) {
	suite.Run(t, new(AccessCtrlSuite))
}

func (s *AccessCtrlSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.audit = auditmem.NewInMemoryStore()

	var err error
	s.service, err = New(s.store, WithAuditPublisher(&storePublisher{store: s.audit}))
	s.Require().NoError(err)

	s.owner = id.AccountID(uuid.New())
	s.controller = id.AccountID(uuid.New())
	s.stranger = id.AccountID(uuid.New())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	s.Require().NoError(s.service.Seed(s.ctx, s.owner, s.controller))
}

func (s *AccessCtrlSuite) TestSeed() {
	s.Run("rejects zero accounts", func() {
		err := s.service.Seed(s.ctx, id.AccountID{}, s.controller)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects owner equal to controller", func() {
		fresh, err := New(NewInMemoryStore())
		s.Require().NoError(err)
		err = fresh.Seed(s.ctx, s.owner, s.owner)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("existing assignment wins over reseeding", func() {
		other := id.AccountID(uuid.New())
		s.NoError(s.service.Seed(s.ctx, other, id.AccountID(uuid.New())))

		current, err := s.service.Owner(s.ctx)
		s.NoError(err)
		s.Equal(s.owner, current)
	})
}

func (s *AccessCtrlSuite) TestAuthorize() {
	s.Run("owner holds the owner role", func() {
		grant, err := s.service.Authorize(s.ctx, s.owner, RoleOwner)
		s.NoError(err)
		s.Equal(s.owner, grant.Caller)
		s.Equal(RoleOwner, grant.Role)
		s.False(grant.CheckedAt.IsZero())
	})

	s.Run("controller holds the controller role", func() {
		_, err := s.service.Authorize(s.ctx, s.controller, RoleController)
		s.NoError(err)
	})

	s.Run("owner does not hold the controller role", func() {
		_, err := s.service.Authorize(s.ctx, s.owner, RoleController)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("controller does not hold the owner role", func() {
		_, err := s.service.Authorize(s.ctx, s.controller, RoleOwner)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("stranger holds neither role", func() {
		_, err := s.service.Authorize(s.ctx, s.stranger, RoleOwner)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		_, err = s.service.Authorize(s.ctx, s.stranger, RoleController)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("zero caller is rejected before the store is consulted", func() {
		_, err := s.service.Authorize(s.ctx, id.AccountID{}, RoleController)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejection emits a security audit event", func() {
		s.audit.Clear()
		_, err := s.service.Authorize(s.ctx, s.stranger, RoleController)
		s.Error(err)

		events, err := s.audit.ListRecent(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventUnauthorizedRejected), events[0].Action)
		s.Equal(s.stranger, events[0].Account)
	})
}

func (s *AccessCtrlSuite) TestSetController() {
	next := id.AccountID(uuid.New())

	s.Run("owner rotates the controller", func() {
		s.audit.Clear()
		s.NoError(s.service.SetController(s.ctx, s.owner, next))

		current, err := s.service.Controller(s.ctx)
		s.NoError(err)
		s.Equal(next, current)

		events, err := s.audit.ListRecent(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventControllerRotated), events[0].Action)
	})

	s.Run("old controller loses the role after rotation", func() {
		s.False(s.service.IsController(s.ctx, s.controller))
		s.True(s.service.IsController(s.ctx, next))
	})

	s.Run("controller cannot rotate itself", func() {
		err := s.service.SetController(s.ctx, next, s.stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("zero controller is rejected", func() {
		err := s.service.SetController(s.ctx, s.owner, id.AccountID{})
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))
	})

	s.Run("owner cannot appoint itself controller", func() {
		err := s.service.SetController(s.ctx, s.owner, s.owner)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *AccessCtrlSuite) TestRolePredicates() {
	s.True(s.service.IsOwner(s.ctx, s.owner))
	s.False(s.service.IsOwner(s.ctx, s.controller))
	s.True(s.service.IsController(s.ctx, s.controller))
	s.False(s.service.IsController(s.ctx, s.stranger))
	s.False(s.service.IsOwner(s.ctx, id.AccountID{}))
}
