package accessctrl

import (
	"context"
	"fmt"
	"log/slog"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/audit"
	"civitas/pkg/requestcontext"
)

// Service is the single capability-check entry point. Every privileged code
// path in the ledger calls Authorize rather than comparing accounts inline,
// so the authorization rule lives in exactly one place.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher audit.Publisher
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("roles store is required")
	}

	svc := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Seed installs the initial role assignment if none exists. Startup calls
// this with accounts from config; an existing assignment wins so a
// redeployment cannot silently rotate roles.
func (s *Service) Seed(ctx context.Context, owner, controller id.AccountID) error {
	if owner.IsZero() || controller.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "owner and controller accounts are required")
	}
	if owner == controller {
		return dErrors.New(dErrors.CodeInvalidInput, "owner and controller must be distinct accounts")
	}

	if _, err := s.store.Get(ctx); err == nil {
		return nil
	}

	roles := Roles{
		Owner:      owner,
		Controller: controller,
		UpdatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.Save(ctx, roles); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed roles")
	}
	return nil
}

// Authorize checks the caller against the required role and returns a typed
// grant. A failed check emits a security audit event before returning
// Unauthorized: rejected privilege escalations are forensically interesting.
func (s *Service) Authorize(ctx context.Context, caller id.AccountID, role Role) (Grant, error) {
	if caller.IsZero() {
		return Grant{}, dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}

	roles, err := s.store.Get(ctx)
	if err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}

	granted := false
	switch role {
	case RoleOwner:
		granted = caller == roles.Owner
	case RoleController:
		granted = caller == roles.Controller
	}

	if !granted {
		s.emitRejection(ctx, caller, role)
		return Grant{}, dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("caller does not hold the %s role", role))
	}

	return Grant{
		Caller:    caller,
		Role:      role,
		CheckedAt: requestcontext.Now(ctx),
	}, nil
}

// SetController rotates the controller role. Owner-only.
func (s *Service) SetController(ctx context.Context, caller, next id.AccountID) error {
	grant, err := s.Authorize(ctx, caller, RoleOwner)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return dErrors.New(dErrors.CodeZeroAccount, "controller cannot be the zero account")
	}

	roles, err := s.store.Get(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	if next == roles.Owner {
		return dErrors.New(dErrors.CodeInvalidInput, "owner and controller must be distinct accounts")
	}

	previous := roles.Controller
	roles.Controller = next
	roles.UpdatedAt = grant.CheckedAt
	if err := s.store.Save(ctx, roles); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save roles")
	}

	s.logger.InfoContext(ctx, "controller rotated",
		"previous", previous,
		"next", next,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			Timestamp: grant.CheckedAt,
			Account:   next,
			Subject:   previous.String(),
			Action:    string(audit.EventControllerRotated),
			ActorID:   caller.String(),
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
		})
	}
	return nil
}

// Owner returns the current owner account.
func (s *Service) Owner(ctx context.Context) (id.AccountID, error) {
	roles, err := s.store.Get(ctx)
	if err != nil {
		return id.AccountID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	return roles.Owner, nil
}

// Controller returns the current controller account.
func (s *Service) Controller(ctx context.Context) (id.AccountID, error) {
	roles, err := s.store.Get(ctx)
	if err != nil {
		return id.AccountID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	return roles.Controller, nil
}

// IsOwner reports whether the caller holds the owner role. Pure read: unlike
// Authorize it emits no audit event, so it is safe in display paths.
func (s *Service) IsOwner(ctx context.Context, caller id.AccountID) bool {
	roles, err := s.store.Get(ctx)
	return err == nil && !caller.IsZero() && caller == roles.Owner
}

// IsController reports whether the caller holds the controller role.
func (s *Service) IsController(ctx context.Context, caller id.AccountID) bool {
	roles, err := s.store.Get(ctx)
	return err == nil && !caller.IsZero() && caller == roles.Controller
}

func (s *Service) emitRejection(ctx context.Context, caller id.AccountID, role Role) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Account:   caller,
		Subject:   string(role),
		Action:    string(audit.EventUnauthorizedRejected),
		Reason:    "missing role",
		RequestID: requestcontext.RequestID(ctx),
		IP:        requestcontext.ClientIP(ctx),
	})
}
