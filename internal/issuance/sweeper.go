package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"civitas/internal/credential"
	"civitas/internal/issuance/metrics"
	id "civitas/pkg/domain"
	"civitas/pkg/platform/audit"
	"civitas/pkg/requestcontext"
)

// sweepConcurrency bounds parallel per-credential evaluations within one pass.
const sweepConcurrency = 4

// CredentialLister enumerates the live ledger for the sweep.
type CredentialLister interface {
	ListAll(ctx context.Context) ([]credential.Credential, error)
}

// Sweeper periodically burns credentials whose holder's decayed balance has
// fallen below the revocation minimum. A minimum of zero disables revocation:
// the sweep idles without touching the ledger.
type Sweeper struct {
	lister   CredentialLister
	ledger   Ledger
	gate     Gate
	roles    Roles
	minimum  int64
	interval time.Duration

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
}

type SweeperOption func(*Sweeper)

func SweeperWithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

func SweeperWithAuditPublisher(publisher audit.Publisher) SweeperOption {
	return func(s *Sweeper) { s.auditPublisher = publisher }
}

func SweeperWithMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(lister CredentialLister, ledger Ledger, gate Gate, roles Roles, minimum int64, interval time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	if lister == nil {
		return nil, fmt.Errorf("credential lister is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("credential ledger is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("eligibility gate is required")
	}
	if roles == nil {
		return nil, fmt.Errorf("role directory is required")
	}
	if minimum < 0 {
		return nil, fmt.Errorf("revocation minimum must not be negative")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}

	s := &Sweeper{
		lister:   lister,
		ledger:   ledger,
		gate:     gate,
		roles:    roles,
		minimum:  minimum,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps on the configured interval until the context is cancelled. A
// failed pass is logged and retried on the next tick; Run itself only returns
// on cancellation so the supervising errgroup never sees a sweep failure as
// fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "revocation sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one revocation pass. All evaluations in the pass observe a
// single instant so two credentials with identical locks are judged alike.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if s.minimum <= 0 {
		return nil
	}

	start := time.Now()
	defer s.metrics.ObserveSweep(start)
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))

	controller, err := s.roles.Controller(ctx)
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}

	credentials, err := s.lister.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, cred := range credentials {
		g.Go(func() error {
			if err := s.sweepOne(ctx, controller, cred); err != nil {
				s.metrics.IncrementSweepFailures()
				s.logger.WarnContext(ctx, "revocation check failed",
					"credential_id", cred.ID,
					"holder", cred.Owner,
					"error", err,
				)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) sweepOne(ctx context.Context, controller id.AccountID, cred credential.Credential) error {
	snapshot, err := s.gate.Evaluate(ctx, cred.Owner)
	if err != nil {
		return fmt.Errorf("evaluate holder: %w", err)
	}
	if snapshot.Balance >= s.minimum {
		return nil
	}

	if err := s.ledger.Burn(ctx, controller, cred.ID); err != nil {
		return fmt.Errorf("burn credential: %w", err)
	}

	s.metrics.IncrementRevocations()
	s.logger.InfoContext(ctx, "credential revoked",
		"credential_id", cred.ID,
		"holder", cred.Owner,
		"balance", snapshot.Balance,
		"minimum", s.minimum,
	)
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Timestamp: snapshot.AsOf,
			Account:   cred.Owner,
			Subject:   cred.ID.String(),
			Action:    string(audit.EventCredentialRevoked),
			Reason:    fmt.Sprintf("decayed balance %d below revocation minimum %d", snapshot.Balance, s.minimum),
			ActorID:   controller.String(),
		})
	}
	return nil
}
