// Package issuance orchestrates holder-initiated credential claims and the
// periodic revocation sweep. It owns no state: the credential ledger holds the
// credentials, the eligibility service computes the gating balances, and the
// access control service names the controller under whose authority every
// mint and burn happens.
package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"civitas/internal/credential"
	"civitas/internal/eligibility"
	"civitas/internal/issuance/metrics"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/requestcontext"
)

// Gate is the fresh, authoritative eligibility evaluation. Claims and sweeps
// never accept a cached snapshot.
type Gate interface {
	Evaluate(ctx context.Context, account id.AccountID) (eligibility.Snapshot, error)
}

// Ledger is the slice of the credential service issuance needs.
type Ledger interface {
	Mint(ctx context.Context, caller, to id.AccountID) (credential.Credential, error)
	Burn(ctx context.Context, caller id.AccountID, credentialID id.CredentialID) error
	BalanceOf(ctx context.Context, account id.AccountID) (int, error)
}

// Roles resolves the controller account. Claims mint under the controller's
// authority regardless of which holder initiated them.
type Roles interface {
	Controller(ctx context.Context) (id.AccountID, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

type Service struct {
	ledger  Ledger
	gate    Gate
	roles   Roles
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu     sync.Mutex
	claims map[id.AccountID]*claimGuard
}

type claimGuard struct {
	mu   sync.Mutex
	refs int
}

func New(ledger Ledger, gate Gate, roles Roles, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("credential ledger is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("eligibility gate is required")
	}
	if roles == nil {
		return nil, fmt.Errorf("role directory is required")
	}

	svc := &Service{
		ledger: ledger,
		gate:   gate,
		roles:  roles,
		logger: slog.Default(),
		tracer: otel.Tracer("civitas/issuance"),
		claims: make(map[id.AccountID]*claimGuard),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Claim mints a credential to the caller when their decayed balance meets the
// threshold. One credential per account: a caller already holding one gets
// Conflict, not a second credential. The mint itself runs under the
// controller's authority and carries the controller as the audit actor.
func (s *Service) Claim(ctx context.Context, caller id.AccountID) (credential.Credential, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "issuance.Claim")
	defer span.End()

	if caller.IsZero() {
		s.metrics.IncrementClaims("rejected")
		return credential.Credential{}, dErrors.New(dErrors.CodeZeroAccount, "caller account is required")
	}

	// The held-check and the mint are one transition under the per-account
	// guard: two claims racing through the eligibility evaluation cannot both
	// observe an empty balance.
	unlock := s.lockAccount(caller)
	defer unlock()

	held, err := s.ledger.BalanceOf(ctx, caller)
	if err != nil {
		s.metrics.IncrementClaims("error")
		return credential.Credential{}, err
	}
	if held > 0 {
		s.metrics.IncrementClaims("conflict")
		return credential.Credential{}, dErrors.New(dErrors.CodeConflict, "account already holds a credential")
	}

	snapshot, err := s.gate.Evaluate(ctx, caller)
	if err != nil {
		s.metrics.IncrementClaims("error")
		return credential.Credential{}, err
	}
	if !snapshot.Eligible {
		s.metrics.IncrementClaims("not_eligible")
		return credential.Credential{}, dErrors.New(dErrors.CodeNotEligible,
			fmt.Sprintf("decayed balance %d is below the threshold %d", snapshot.Balance, snapshot.Threshold))
	}

	controller, err := s.roles.Controller(ctx)
	if err != nil {
		s.metrics.IncrementClaims("error")
		return credential.Credential{}, err
	}

	minted, err := s.ledger.Mint(ctx, controller, caller)
	if err != nil {
		s.metrics.IncrementClaims("error")
		return credential.Credential{}, err
	}

	span.SetAttributes(attribute.String("credential.id", minted.ID.String()))
	s.metrics.IncrementClaims("issued")
	s.metrics.ObserveClaim(start)
	s.logger.InfoContext(ctx, "credential claimed",
		"credential_id", minted.ID,
		"holder", caller,
		"balance", snapshot.Balance,
		"request_id", requestcontext.RequestID(ctx),
	)
	return minted, nil
}

// lockAccount serializes claims for one account without blocking claims for
// others. Guards are reference counted and dropped once the last claimant
// releases, so the map stays bounded by in-flight claims.
func (s *Service) lockAccount(account id.AccountID) func() {
	s.mu.Lock()
	guard, ok := s.claims[account]
	if !ok {
		guard = &claimGuard{}
		s.claims[account] = guard
	}
	guard.refs++
	s.mu.Unlock()

	guard.mu.Lock()
	return func() {
		guard.mu.Unlock()
		s.mu.Lock()
		guard.refs--
		if guard.refs == 0 {
			delete(s.claims, account)
		}
		s.mu.Unlock()
	}
}
