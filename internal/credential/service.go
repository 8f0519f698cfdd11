package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"civitas/internal/accessctrl"
	"civitas/internal/credential/metrics"
	"civitas/internal/renderer"
	"civitas/internal/staketoken"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/audit"
	"civitas/pkg/platform/sentinel"
	"civitas/pkg/requestcontext"
)

// Authorizer is the capability check the ledger requires before any
// privileged mutation.
type Authorizer interface {
	Authorize(ctx context.Context, caller id.AccountID, role accessctrl.Role) (accessctrl.Grant, error)
}

// Service is the identity credential ledger. Every mutation follows the same
// shape: authorize, check preconditions, probe the recipient when the safe
// variant demands it, then apply the mutation and its audit record inside one
// transaction. A rejected call leaves the ledger untouched.
type Service struct {
	store  Store
	tx     Tx
	access Authorizer
	prober AcceptanceProber
	stake  staketoken.TokenService

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	// render is swappable at runtime through SetRenderer; reads take the
	// lock so TokenURI never observes a half-applied swap.
	renderMu   sync.RWMutex
	render     renderer.Renderer
	renderName string
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithProber replaces the receiver acceptance prober.
func WithProber(prober AcceptanceProber) Option {
	return func(s *Service) {
		s.prober = prober
	}
}

// WithRenderer installs the initial metadata renderer.
func WithRenderer(r renderer.Renderer, name string) Option {
	return func(s *Service) {
		s.render = r
		s.renderName = name
	}
}

// WithStakeToken wires the fungible stake collaborator used by RecoverTokens.
func WithStakeToken(token staketoken.TokenService) Option {
	return func(s *Service) {
		s.stake = token
	}
}

func New(store Store, tx Tx, access Authorizer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if access == nil {
		return nil, fmt.Errorf("authorizer is required")
	}

	svc := &Service{
		store:      store,
		tx:         tx,
		access:     access,
		prober:     NewHTTPProber(5 * time.Second),
		logger:     slog.Default(),
		render:     renderer.NewStatic(""),
		renderName: "static",
		tracer:     otel.Tracer("civitas/credential"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Mint issues a new credential to the account. Controller-only. The new id
// comes off the monotonic counter; burned ids are never reissued.
func (s *Service) Mint(ctx context.Context, caller, to id.AccountID) (Credential, error) {
	return s.mint(ctx, caller, to, false, nil)
}

// SafeMint is Mint plus the receiver acceptance probe. An account with a
// registered receiver endpoint must answer the probe before the mint applies;
// accounts without one accept implicitly.
func (s *Service) SafeMint(ctx context.Context, caller, to id.AccountID, data []byte) (Credential, error) {
	return s.mint(ctx, caller, to, true, data)
}

func (s *Service) mint(ctx context.Context, caller, to id.AccountID, safe bool, data []byte) (Credential, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "credential.Mint")
	defer span.End()

	grant, err := s.access.Authorize(ctx, caller, accessctrl.RoleController)
	if err != nil {
		s.metrics.IncrementRejected("mint", string(dErrors.CodeOf(err)))
		return Credential{}, err
	}
	if to.IsZero() {
		s.metrics.IncrementRejected("mint", string(dErrors.CodeZeroAccount))
		return Credential{}, dErrors.New(dErrors.CodeZeroAccount, "cannot mint to the zero account")
	}

	if safe {
		if err := s.probeRecipient(ctx, grant.Caller, id.ZeroAccount, to, 0, data, true); err != nil {
			s.metrics.IncrementRejected("mint", string(dErrors.CodeOf(err)))
			return Credential{}, err
		}
	}

	var minted Credential
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		minted, err = s.store.Mint(ctx, to, grant.CheckedAt)
		if err != nil {
			return fmt.Errorf("mint credential: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: grant.CheckedAt,
			Account:   to,
			Subject:   minted.ID.String(),
			Action:    string(audit.EventCredentialMinted),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
	if err != nil {
		s.metrics.IncrementRejected("mint", string(dErrors.CodeOf(err)))
		return Credential{}, err
	}

	span.SetAttributes(attribute.String("credential.id", minted.ID.String()))
	s.metrics.IncrementMinted()
	s.metrics.ObserveMutation("mint", start)
	s.logger.InfoContext(ctx, "credential minted",
		"credential_id", minted.ID,
		"owner", to,
		"request_id", requestcontext.RequestID(ctx),
	)
	return minted, nil
}

// Burn removes a credential from the ledger. Controller-only. The id stays
// retired: later reads answer NotMinted forever.
func (s *Service) Burn(ctx context.Context, caller id.AccountID, credentialID id.CredentialID) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "credential.Burn")
	defer span.End()

	grant, err := s.access.Authorize(ctx, caller, accessctrl.RoleController)
	if err != nil {
		s.metrics.IncrementRejected("burn", string(dErrors.CodeOf(err)))
		return err
	}

	cred, err := s.getMinted(ctx, credentialID)
	if err != nil {
		s.metrics.IncrementRejected("burn", string(dErrors.CodeOf(err)))
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Burn(ctx, credentialID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotMinted, "credential is not minted")
			}
			return fmt.Errorf("burn credential: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: grant.CheckedAt,
			Account:   cred.Owner,
			Subject:   credentialID.String(),
			Action:    string(audit.EventCredentialBurned),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
	if err != nil {
		s.metrics.IncrementRejected("burn", string(dErrors.CodeOf(err)))
		return err
	}

	span.SetAttributes(attribute.String("credential.id", credentialID.String()))
	s.metrics.IncrementBurned()
	s.metrics.ObserveMutation("burn", start)
	s.logger.InfoContext(ctx, "credential burned",
		"credential_id", credentialID,
		"previous_owner", cred.Owner,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// TransferFrom moves a credential between accounts. The caller must hold the
// controller role; actor is the account the transfer is performed on behalf
// of, and must itself be the holder, an approved spender, an operator of the
// holder, or the controller. A zero actor means the controller acts as
// itself.
func (s *Service) TransferFrom(ctx context.Context, caller, from, to id.AccountID, credentialID id.CredentialID, actor id.AccountID) error {
	return s.transfer(ctx, caller, from, to, credentialID, actor, false, nil)
}

// SafeTransferFrom is TransferFrom plus the receiver acceptance probe.
func (s *Service) SafeTransferFrom(ctx context.Context, caller, from, to id.AccountID, credentialID id.CredentialID, actor id.AccountID) error {
	return s.transfer(ctx, caller, from, to, credentialID, actor, true, nil)
}

// SafeTransferFromData is SafeTransferFrom with opaque bytes forwarded to
// the receiver probe.
func (s *Service) SafeTransferFromData(ctx context.Context, caller, from, to id.AccountID, credentialID id.CredentialID, actor id.AccountID, data []byte) error {
	return s.transfer(ctx, caller, from, to, credentialID, actor, true, data)
}

func (s *Service) transfer(ctx context.Context, caller, from, to id.AccountID, credentialID id.CredentialID, actor id.AccountID, safe bool, data []byte) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "credential.Transfer")
	defer span.End()

	grant, err := s.access.Authorize(ctx, caller, accessctrl.RoleController)
	if err != nil {
		s.metrics.IncrementRejected("transfer", string(dErrors.CodeOf(err)))
		return err
	}
	if actor.IsZero() {
		actor = grant.Caller
	}

	if to.IsZero() {
		s.metrics.IncrementRejected("transfer", string(dErrors.CodeZeroAccount))
		return dErrors.New(dErrors.CodeZeroAccount, "cannot transfer to the zero account")
	}

	cred, err := s.getMinted(ctx, credentialID)
	if err != nil {
		s.metrics.IncrementRejected("transfer", string(dErrors.CodeOf(err)))
		return err
	}
	if cred.Owner != from {
		s.metrics.IncrementRejected("transfer", string(dErrors.CodeInvalidFrom))
		return dErrors.New(dErrors.CodeInvalidFrom, "from does not hold the credential")
	}

	allowed, err := s.actorMayMove(ctx, actor, cred, grant.Caller)
	if err != nil {
		return err
	}
	if !allowed {
		s.metrics.IncrementRejected("transfer", string(dErrors.CodeUnauthorized))
		return dErrors.New(dErrors.CodeUnauthorized, "actor may not move this credential")
	}

	if safe {
		if err := s.probeRecipient(ctx, actor, from, to, credentialID, data, false); err != nil {
			s.metrics.IncrementRejected("transfer", string(dErrors.CodeOf(err)))
			return err
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Transfer(ctx, from, to, credentialID); err != nil {
			// The store re-checks ownership under its own lock.
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotMinted, "credential is not minted")
			}
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeInvalidFrom, "from does not hold the credential")
			}
			return fmt.Errorf("transfer credential: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: grant.CheckedAt,
			Account:   to,
			Subject:   credentialID.String(),
			Action:    string(audit.EventCredentialTransferred),
			Reason:    "from " + from.String(),
			ActorID:   actor.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
	if err != nil {
		s.metrics.IncrementRejected("transfer", string(dErrors.CodeOf(err)))
		return err
	}

	span.SetAttributes(attribute.String("credential.id", credentialID.String()))
	s.metrics.IncrementTransferred()
	s.metrics.ObserveMutation("transfer", start)
	s.logger.InfoContext(ctx, "credential transferred",
		"credential_id", credentialID,
		"from", from,
		"to", to,
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// actorMayMove applies the secondary authorization layer under the
// controller gate: holder, per-credential approval, operator, or the
// controller itself.
func (s *Service) actorMayMove(ctx context.Context, actor id.AccountID, cred Credential, controller id.AccountID) (bool, error) {
	if actor == cred.Owner || actor == controller {
		return true, nil
	}
	approved, err := s.store.Approved(ctx, cred.ID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, fmt.Errorf("check approval: %w", err)
	}
	if err == nil && !approved.IsZero() && approved == actor {
		return true, nil
	}
	isOperator, err := s.store.IsOperator(ctx, cred.Owner, actor)
	if err != nil {
		return false, fmt.Errorf("check operator: %w", err)
	}
	return isOperator, nil
}

func (s *Service) probeRecipient(ctx context.Context, actor, from, to id.AccountID, credentialID id.CredentialID, data []byte, minting bool) error {
	endpoint, err := s.store.Receiver(ctx, to)
	if err != nil {
		return fmt.Errorf("look up receiver: %w", err)
	}
	if endpoint == "" {
		// No registered endpoint means implicit acceptance.
		return nil
	}

	start := time.Now()
	err = s.prober.Probe(ctx, endpoint, AcceptanceProbe{
		Actor: actor,
		From:  from,
		To:    to,
		ID:    credentialID,
		Data:  data,
	})
	s.metrics.ObserveProbe(start)
	if err != nil {
		s.logger.WarnContext(ctx, "receiver rejected credential",
			"recipient", to,
			"endpoint", endpoint,
			"minting", minting,
			"error", err,
		)
		return err
	}
	return nil
}

// OwnerOf returns the current holder.
func (s *Service) OwnerOf(ctx context.Context, credentialID id.CredentialID) (id.AccountID, error) {
	cred, err := s.getMinted(ctx, credentialID)
	if err != nil {
		return id.AccountID{}, err
	}
	return cred.Owner, nil
}

// Get returns the full credential record.
func (s *Service) Get(ctx context.Context, credentialID id.CredentialID) (Credential, error) {
	return s.getMinted(ctx, credentialID)
}

// BalanceOf counts the account's credentials. Querying the zero account is
// an error rather than zero, to surface caller bugs.
func (s *Service) BalanceOf(ctx context.Context, account id.AccountID) (int, error) {
	if account.IsZero() {
		return 0, dErrors.New(dErrors.CodeZeroAccount, "cannot query the zero account")
	}
	count, err := s.store.BalanceOf(ctx, account)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count credentials")
	}
	return count, nil
}

// CredentialsOf lists the account's credentials in id order.
func (s *Service) CredentialsOf(ctx context.Context, account id.AccountID) ([]Credential, error) {
	if account.IsZero() {
		return nil, dErrors.New(dErrors.CodeZeroAccount, "cannot query the zero account")
	}
	creds, err := s.store.CredentialsOf(ctx, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return creds, nil
}

// Stats returns supply counters for the public stats endpoint.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counters, err := s.store.Counters(ctx)
	if err != nil {
		return Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read counters")
	}
	return Stats{
		TotalSupply: counters.TotalSupply,
		NextID:      counters.NextID,
	}, nil
}

// TokenURI renders the credential's display descriptor through the active
// renderer. The output is relayed verbatim.
func (s *Service) TokenURI(ctx context.Context, credentialID id.CredentialID) (string, error) {
	cred, err := s.getMinted(ctx, credentialID)
	if err != nil {
		return "", err
	}

	s.renderMu.RLock()
	render := s.render
	s.renderMu.RUnlock()

	uri, err := render.Render(ctx, cred.ID, cred.Owner, cred.MintedAt)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "renderer failed")
	}
	return uri, nil
}

// Approve grants spender the right to move one credential. The caller must
// be the holder or one of the holder's operators. A zero spender clears the
// approval.
func (s *Service) Approve(ctx context.Context, caller id.AccountID, credentialID id.CredentialID, spender id.AccountID) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}

	cred, err := s.getMinted(ctx, credentialID)
	if err != nil {
		return err
	}
	if caller != cred.Owner {
		isOperator, err := s.store.IsOperator(ctx, cred.Owner, caller)
		if err != nil {
			return fmt.Errorf("check operator: %w", err)
		}
		if !isOperator {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is not the holder or an operator")
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetApproval(ctx, credentialID, spender); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotMinted, "credential is not minted")
			}
			return fmt.Errorf("set approval: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: requestcontext.Now(ctx),
			Account:   cred.Owner,
			Subject:   credentialID.String(),
			Action:    string(audit.EventApprovalGranted),
			Reason:    "spender " + spender.String(),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
	return err
}

// SetApprovalForAll grants or revokes operator rights over every credential
// the caller holds, now and in the future.
func (s *Service) SetApprovalForAll(ctx context.Context, caller, operator id.AccountID, approved bool) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	if operator.IsZero() {
		return dErrors.New(dErrors.CodeZeroAccount, "operator cannot be the zero account")
	}
	if operator == caller {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot set self as operator")
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetOperator(ctx, caller, operator, approved); err != nil {
			return fmt.Errorf("set operator: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: requestcontext.Now(ctx),
			Account:   caller,
			Subject:   operator.String(),
			Action:    string(audit.EventOperatorSet),
			Decision:  fmt.Sprintf("approved=%t", approved),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
}

// SetReceiver registers the caller's acceptance endpoint. Safe mints and
// safe transfers to the account will probe it before applying.
func (s *Service) SetReceiver(ctx context.Context, caller id.AccountID, endpoint string) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	if endpoint == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "endpoint is required")
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetReceiver(ctx, caller, endpoint); err != nil {
			return fmt.Errorf("set receiver: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: requestcontext.Now(ctx),
			Account:   caller,
			Subject:   endpoint,
			Action:    string(audit.EventReceiverRegistered),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
}

// ClearReceiver removes the caller's acceptance endpoint, restoring implicit
// acceptance.
func (s *Service) ClearReceiver(ctx context.Context, caller id.AccountID) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetReceiver(ctx, caller, ""); err != nil {
			return fmt.Errorf("clear receiver: %w", err)
		}
		return s.emit(ctx, audit.Event{
			Timestamp: requestcontext.Now(ctx),
			Account:   caller,
			Action:    string(audit.EventReceiverCleared),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	})
}

// SetRenderer swaps the metadata renderer. Owner-only. An empty endpoint
// restores the built-in static renderer.
func (s *Service) SetRenderer(ctx context.Context, caller id.AccountID, endpoint string) error {
	grant, err := s.access.Authorize(ctx, caller, accessctrl.RoleOwner)
	if err != nil {
		return err
	}

	var (
		next renderer.Renderer
		name string
	)
	if endpoint == "" {
		next = renderer.NewStatic("")
		name = "static"
	} else {
		next = renderer.NewClient(endpoint, 5*time.Second)
		name = endpoint
	}

	s.renderMu.Lock()
	previous := s.renderName
	s.render = next
	s.renderName = name
	s.renderMu.Unlock()

	s.logger.InfoContext(ctx, "renderer updated",
		"previous", previous,
		"next", name,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.emit(ctx, audit.Event{
		Timestamp: grant.CheckedAt,
		Account:   caller,
		Subject:   name,
		Action:    string(audit.EventRendererUpdated),
		Reason:    "previous " + previous,
		ActorID:   caller.String(),
		RequestID: requestcontext.RequestID(ctx),
		IP:        requestcontext.ClientIP(ctx),
	})
}

// RecoverTokens returns stray fungible stake that landed in the ledger's
// custody account. Owner-only; delegates balance checks to the token
// service.
func (s *Service) RecoverTokens(ctx context.Context, caller id.AccountID, asset id.Asset, to id.AccountID, amount int64) error {
	grant, err := s.access.Authorize(ctx, caller, accessctrl.RoleOwner)
	if err != nil {
		return err
	}
	if s.stake == nil {
		return dErrors.New(dErrors.CodeInternal, "stake token service is not configured")
	}
	if to.IsZero() {
		return dErrors.New(dErrors.CodeZeroAccount, "cannot recover to the zero account")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}

	if err := s.stake.Transfer(ctx, asset, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConflict, "stake recovery transfer failed")
	}

	s.logger.InfoContext(ctx, "stake recovered",
		"asset", asset,
		"to", to,
		"amount", amount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.emit(ctx, audit.Event{
		Timestamp: grant.CheckedAt,
		Account:   to,
		Subject:   string(asset),
		Action:    string(audit.EventStakeRecovered),
		Reason:    fmt.Sprintf("amount %d", amount),
		ActorID:   caller.String(),
		RequestID: requestcontext.RequestID(ctx),
		IP:        requestcontext.ClientIP(ctx),
	})
}

func (s *Service) getMinted(ctx context.Context, credentialID id.CredentialID) (Credential, error) {
	cred, err := s.store.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Credential{}, dErrors.New(dErrors.CodeNotMinted, "credential is not minted")
		}
		return Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return cred, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit record failed")
	}
	return nil
}
