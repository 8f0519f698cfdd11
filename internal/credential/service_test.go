package credential

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civitas/internal/accessctrl"
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

// fakeProber records probes and answers with a scripted verdict.
type fakeProber struct {
	probes []AcceptanceProbe
	reject bool
}

func (p *fakeProber) Probe(_ context.Context, _ string, probe AcceptanceProbe) error {
	p.probes = append(p.probes, probe)
	if p.reject {
		return dErrors.New(dErrors.CodeUnsafeRecipient, "receiver refused")
	}
	return nil
}

type CredentialServiceSuite struct {
	suite.Suite
	store      *InMemoryStore
	audit      *auditmem.InMemoryStore
	prober     *fakeProber
	service    *Service
	owner      id.AccountID
	controller id.AccountID
	holder     id.AccountID
	stranger   id.AccountID
	ctx        context.Context
	now        time.Time
}

func TestCredentialServiceSuite(t *testing.T) {
	suite.Run(t, new(CredentialServiceSuite))
}

func (s *CredentialServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.audit = auditmem.NewInMemoryStore()
	s.prober = &fakeProber{}

	s.owner = id.AccountID(uuid.New())
	s.controller = id.AccountID(uuid.New())
	s.holder = id.AccountID(uuid.New())
	s.stranger = id.AccountID(uuid.New())
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	access, err := accessctrl.New(accessctrl.NewInMemoryStore())
	s.Require().NoError(err)
	s.Require().NoError(access.Seed(s.ctx, s.owner, s.controller))

	s.service, err = New(s.store, NewMemoryTx(), access,
		WithAuditPublisher(&storePublisher{store: s.audit}),
		WithProber(s.prober),
	)
	s.Require().NoError(err)
}

func (s *CredentialServiceSuite) mint(to id.AccountID) Credential {
	minted, err := s.service.Mint(s.ctx, s.controller, to)
	s.Require().NoError(err)
	return minted
}

func (s *CredentialServiceSuite) TestMint() {
	s.Run("allocates monotonic ids", func() {
		first := s.mint(s.holder)
		second := s.mint(s.stranger)
		s.Equal(id.CredentialID(0), first.ID)
		s.Equal(id.CredentialID(1), second.ID)
		s.Equal(s.now, first.MintedAt)

		stats, err := s.service.Stats(s.ctx)
		s.NoError(err)
		s.Equal(uint64(2), stats.TotalSupply)
		s.Equal(id.CredentialID(2), stats.NextID)
	})

	s.Run("rejects non-controller caller", func() {
		_, err := s.service.Mint(s.ctx, s.stranger, s.holder)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects the zero recipient", func() {
		_, err := s.service.Mint(s.ctx, s.controller, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))
	})

	s.Run("records a compliance audit event", func() {
		minted := s.mint(s.holder)

		events, err := s.audit.ListByAccount(s.ctx, s.holder)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		last := events[len(events)-1]
		s.Equal(string(audit.EventCredentialMinted), last.Action)
		s.Equal(minted.ID.String(), last.Subject)
	})
}

func (s *CredentialServiceSuite) TestSafeMint() {
	s.Run("accounts without a receiver accept implicitly", func() {
		_, err := s.service.SafeMint(s.ctx, s.controller, s.holder, nil)
		s.NoError(err)
		s.Empty(s.prober.probes)
	})

	s.Run("probes a registered receiver before minting", func() {
		s.Require().NoError(s.service.SetReceiver(s.ctx, s.holder, "http://receiver.test/hook"))

		minted, err := s.service.SafeMint(s.ctx, s.controller, s.holder, []byte("hello"))
		s.NoError(err)
		s.Require().Len(s.prober.probes, 1)
		probe := s.prober.probes[0]
		s.Equal(id.ZeroAccount, probe.From)
		s.Equal(s.holder, probe.To)
		s.Equal([]byte("hello"), probe.Data)
		s.Equal(s.holder, minted.Owner)
	})

	s.Run("refusal leaves the ledger untouched", func() {
		s.Require().NoError(s.service.SetReceiver(s.ctx, s.stranger, "http://receiver.test/hook"))
		before, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)

		s.prober.reject = true
		_, err = s.service.SafeMint(s.ctx, s.controller, s.stranger, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsafeRecipient))
		s.prober.reject = false

		after, err := s.service.Stats(s.ctx)
		s.NoError(err)
		s.Equal(before, after)
	})
}

func (s *CredentialServiceSuite) TestBurn() {
	s.Run("burn retires the id forever", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.Burn(s.ctx, s.controller, minted.ID))

		_, err := s.service.OwnerOf(s.ctx, minted.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotMinted))

		// The counter does not rewind: the next mint takes a fresh id.
		next := s.mint(s.holder)
		s.Greater(uint64(next.ID), uint64(minted.ID))
	})

	s.Run("burning an unminted id fails", func() {
		err := s.service.Burn(s.ctx, s.controller, id.CredentialID(404))
		s.True(dErrors.HasCode(err, dErrors.CodeNotMinted))
	})

	s.Run("rejects non-controller caller", func() {
		minted := s.mint(s.holder)
		err := s.service.Burn(s.ctx, s.stranger, minted.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *CredentialServiceSuite) TestTransferFrom() {
	s.Run("controller moves a credential as itself", func() {
		minted := s.mint(s.holder)
		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, s.stranger, minted.ID, id.ZeroAccount)
		s.NoError(err)

		owner, err := s.service.OwnerOf(s.ctx, minted.ID)
		s.NoError(err)
		s.Equal(s.stranger, owner)
	})

	s.Run("rejects when from is not the holder", func() {
		minted := s.mint(s.holder)
		err := s.service.TransferFrom(s.ctx, s.controller, s.stranger, s.owner, minted.ID, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidFrom))

		owner, err := s.service.OwnerOf(s.ctx, minted.ID)
		s.NoError(err)
		s.Equal(s.holder, owner)
	})

	s.Run("rejects the zero recipient", func() {
		minted := s.mint(s.holder)
		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, id.ZeroAccount, minted.ID, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))
	})

	s.Run("rejects an unminted id", func() {
		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, s.stranger, id.CredentialID(404), id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeNotMinted))
	})

	s.Run("outer gate requires the controller", func() {
		minted := s.mint(s.holder)
		err := s.service.TransferFrom(s.ctx, s.holder, s.holder, s.stranger, minted.ID, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("actor must have standing", func() {
		minted := s.mint(s.holder)
		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, s.owner, minted.ID, s.stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("holder actor may move their own credential", func() {
		minted := s.mint(s.holder)
		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, s.stranger, minted.ID, s.holder)
		s.NoError(err)
	})

	s.Run("approved actor may move the credential once", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.Approve(s.ctx, s.holder, minted.ID, s.stranger))

		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, s.owner, minted.ID, s.stranger)
		s.NoError(err)

		// Transfer clears the per-credential approval.
		approved, err := s.store.Approved(s.ctx, minted.ID)
		s.NoError(err)
		s.True(approved.IsZero())
	})

	s.Run("operator actor may move any of the holder's credentials", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.SetApprovalForAll(s.ctx, s.holder, s.stranger, true))

		err := s.service.TransferFrom(s.ctx, s.controller, s.holder, s.owner, minted.ID, s.stranger)
		s.NoError(err)

		s.Require().NoError(s.service.SetApprovalForAll(s.ctx, s.holder, s.stranger, false))
	})

	s.Run("balances follow the move", func() {
		minted := s.mint(s.holder)
		holderBefore, _ := s.service.BalanceOf(s.ctx, s.holder)
		strangerBefore, _ := s.service.BalanceOf(s.ctx, s.stranger)

		s.Require().NoError(s.service.TransferFrom(s.ctx, s.controller, s.holder, s.stranger, minted.ID, id.ZeroAccount))

		holderAfter, _ := s.service.BalanceOf(s.ctx, s.holder)
		strangerAfter, _ := s.service.BalanceOf(s.ctx, s.stranger)
		s.Equal(holderBefore-1, holderAfter)
		s.Equal(strangerBefore+1, strangerAfter)
	})
}

func (s *CredentialServiceSuite) TestSafeTransferFrom() {
	s.Run("probes the recipient with transfer details", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.SetReceiver(s.ctx, s.stranger, "http://receiver.test/hook"))

		err := s.service.SafeTransferFromData(s.ctx, s.controller, s.holder, s.stranger, minted.ID, s.holder, []byte("ctx"))
		s.NoError(err)

		s.Require().NotEmpty(s.prober.probes)
		probe := s.prober.probes[len(s.prober.probes)-1]
		s.Equal(s.holder, probe.From)
		s.Equal(s.stranger, probe.To)
		s.Equal(minted.ID, probe.ID)
		s.Equal(s.holder, probe.Actor)
	})

	s.Run("refusal leaves ownership unchanged", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.SetReceiver(s.ctx, s.stranger, "http://receiver.test/hook"))

		s.prober.reject = true
		err := s.service.SafeTransferFrom(s.ctx, s.controller, s.holder, s.stranger, minted.ID, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsafeRecipient))
		s.prober.reject = false

		owner, err := s.service.OwnerOf(s.ctx, minted.ID)
		s.NoError(err)
		s.Equal(s.holder, owner)
	})
}

func (s *CredentialServiceSuite) TestApprove() {
	s.Run("only the holder or an operator may approve", func() {
		minted := s.mint(s.holder)
		err := s.service.Approve(s.ctx, s.stranger, minted.ID, s.stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("operator of the holder may approve", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.SetApprovalForAll(s.ctx, s.holder, s.stranger, true))

		err := s.service.Approve(s.ctx, s.stranger, minted.ID, s.owner)
		s.NoError(err)

		approved, err := s.store.Approved(s.ctx, minted.ID)
		s.NoError(err)
		s.Equal(s.owner, approved)
	})

	s.Run("zero spender clears the approval", func() {
		minted := s.mint(s.holder)
		s.Require().NoError(s.service.Approve(s.ctx, s.holder, minted.ID, s.stranger))
		s.Require().NoError(s.service.Approve(s.ctx, s.holder, minted.ID, id.ZeroAccount))

		approved, err := s.store.Approved(s.ctx, minted.ID)
		s.NoError(err)
		s.True(approved.IsZero())
	})
}

func (s *CredentialServiceSuite) TestSetApprovalForAll() {
	s.Run("rejects self as operator", func() {
		err := s.service.SetApprovalForAll(s.ctx, s.holder, s.holder, true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects the zero operator", func() {
		err := s.service.SetApprovalForAll(s.ctx, s.holder, id.ZeroAccount, true)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))
	})
}

func (s *CredentialServiceSuite) TestTokenURI() {
	s.Run("renders through the static renderer by default", func() {
		minted := s.mint(s.holder)
		uri, err := s.service.TokenURI(s.ctx, minted.ID)
		s.NoError(err)
		s.Contains(uri, "data:application/json;base64,")
	})

	s.Run("unminted id fails", func() {
		_, err := s.service.TokenURI(s.ctx, id.CredentialID(404))
		s.True(dErrors.HasCode(err, dErrors.CodeNotMinted))
	})
}

func (s *CredentialServiceSuite) TestSetRenderer() {
	s.Run("owner only", func() {
		err := s.service.SetRenderer(s.ctx, s.controller, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty endpoint restores the static renderer", func() {
		s.NoError(s.service.SetRenderer(s.ctx, s.owner, ""))

		minted := s.mint(s.holder)
		uri, err := s.service.TokenURI(s.ctx, minted.ID)
		s.NoError(err)
		s.Contains(uri, "data:application/json;base64,")
	})
}

func (s *CredentialServiceSuite) TestReads() {
	s.Run("zero account queries are rejected", func() {
		_, err := s.service.BalanceOf(s.ctx, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))

		_, err = s.service.CredentialsOf(s.ctx, id.ZeroAccount)
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAccount))
	})

	s.Run("credentials list in id order", func() {
		first := s.mint(s.holder)
		second := s.mint(s.holder)

		creds, err := s.service.CredentialsOf(s.ctx, s.holder)
		s.NoError(err)
		s.Require().Len(creds, 2)
		s.Equal(first.ID, creds[0].ID)
		s.Equal(second.ID, creds[1].ID)
	})
}
