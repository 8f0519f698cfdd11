// Package handler exposes the owner-gated operational surface: renderer
// swaps, controller rotation, stake recovery, and the audit trail read.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/admin-mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/audit"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// defaultAuditLimit bounds the audit read when the caller does not ask for a
// specific page size.
const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// Ledger is the owner-only slice of the credential service.
type Ledger interface {
	SetRenderer(ctx context.Context, caller id.AccountID, endpoint string) error
	RecoverTokens(ctx context.Context, caller id.AccountID, asset id.Asset, to id.AccountID, amount int64) error
}

// Roles rotates the controller and names the acting owner account. Owner
// requests authenticate with an API key, so the handler resolves the account
// from the role assignment rather than the request.
type Roles interface {
	SetController(ctx context.Context, caller, next id.AccountID) error
	Owner(ctx context.Context) (id.AccountID, error)
}

// AuditReader serves the materialized audit trail.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
	ListByAccount(ctx context.Context, account id.AccountID) ([]audit.Event, error)
}

type Handler struct {
	ledger    Ledger
	roles     Roles
	trail     AuditReader
	ownerGate func(http.Handler) http.Handler
	logger    *slog.Logger
}

func New(ledger Ledger, roles Roles, trail AuditReader, ownerGate func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:    ledger,
		roles:     roles,
		trail:     trail,
		ownerGate: ownerGate,
		logger:    logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(h.ownerGate)
		r.Put("/renderer", h.setRenderer)
		r.Put("/controller", h.setController)
		r.Post("/recover", h.recover)
		r.Get("/audit", h.audit)
	})
}

type rendererRequest struct {
	// Endpoint of the metadata renderer service. Empty restores the static
	// renderer.
	Endpoint string `json:"endpoint"`
}

func (r *rendererRequest) Validate() error {
	return nil
}

type controllerRequest struct {
	Controller string `json:"controller"`

	next id.AccountID
}

func (r *controllerRequest) Validate() error {
	next, err := id.ParseAccountID(r.Controller)
	if err != nil {
		return err
	}
	r.next = next
	return nil
}

type recoverRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`

	asset id.Asset
	to    id.AccountID
}

func (r *recoverRequest) Validate() error {
	asset, err := id.ParseAsset(r.Asset)
	if err != nil {
		return err
	}
	to, err := id.ParseAccountID(r.To)
	if err != nil {
		return err
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	r.asset = asset
	r.to = to
	return nil
}

type auditEventResponse struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Account   string    `json:"account,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

func (h *Handler) setRenderer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.ownerAccount(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[rendererRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.ledger.SetRenderer(ctx, owner, req.Endpoint); err != nil {
		h.writeServiceError(ctx, w, "renderer update failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setController(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.ownerAccount(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[controllerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.roles.SetController(ctx, owner, req.next); err != nil {
		h.writeServiceError(ctx, w, "controller rotation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.ownerAccount(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[recoverRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.ledger.RecoverTokens(ctx, owner, req.asset, req.to, req.Amount); err != nil {
		h.writeServiceError(ctx, w, "stake recovery failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		events []audit.Event
		err    error
	)
	if raw := r.URL.Query().Get("account"); raw != "" {
		account, parseErr := id.ParseAccountID(raw)
		if parseErr != nil {
			httputil.WriteError(w, parseErr)
			return
		}
		events, err = h.trail.ListByAccount(ctx, account)
	} else {
		limit := defaultAuditLimit
		if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
			limit, err = strconv.Atoi(rawLimit)
			if err != nil || limit < 1 || limit > maxAuditLimit {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 1000"))
				return
			}
		}
		events, err = h.trail.ListRecent(ctx, limit)
	}
	if err != nil {
		h.writeServiceError(ctx, w, "audit read failed", err)
		return
	}

	resp := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		item := auditEventResponse{
			Category:  string(e.Category),
			Timestamp: e.Timestamp,
			Subject:   e.Subject,
			Action:    e.Action,
			Decision:  e.Decision,
			Reason:    e.Reason,
			ActorID:   e.ActorID,
			RequestID: e.RequestID,
			IP:        e.IP,
		}
		if !e.Account.IsZero() {
			item.Account = e.Account.String()
		}
		resp = append(resp, item)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ownerAccount resolves the acting owner from the role assignment. The owner
// API key proves the capability; the assignment names the account.
func (h *Handler) ownerAccount(ctx context.Context, w http.ResponseWriter) (id.AccountID, bool) {
	owner, err := h.roles.Owner(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "owner resolution failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return id.AccountID{}, false
	}
	return owner, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
