// Package handler exposes the credential ledger over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/credential-mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civitas/internal/credential"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// Service is the slice of the credential ledger the transport needs.
type Service interface {
	Mint(ctx context.Context, caller, to id.AccountID) (credential.Credential, error)
	SafeMint(ctx context.Context, caller, to id.AccountID, data []byte) (credential.Credential, error)
	Burn(ctx context.Context, caller id.AccountID, credentialID id.CredentialID) error
	TransferFrom(ctx context.Context, caller, from, to id.AccountID, credentialID id.CredentialID, actor id.AccountID) error
	SafeTransferFromData(ctx context.Context, caller, from, to id.AccountID, credentialID id.CredentialID, actor id.AccountID, data []byte) error
	Get(ctx context.Context, credentialID id.CredentialID) (credential.Credential, error)
	TokenURI(ctx context.Context, credentialID id.CredentialID) (string, error)
	Stats(ctx context.Context) (credential.Stats, error)
	BalanceOf(ctx context.Context, account id.AccountID) (int, error)
	CredentialsOf(ctx context.Context, account id.AccountID) ([]credential.Credential, error)
	Approve(ctx context.Context, caller id.AccountID, credentialID id.CredentialID, spender id.AccountID) error
	SetApprovalForAll(ctx context.Context, caller, operator id.AccountID, approved bool) error
	SetReceiver(ctx context.Context, caller id.AccountID, endpoint string) error
	ClearReceiver(ctx context.Context, caller id.AccountID) error
}

// RoleDirectory resolves the service accounts behind the API key gates.
type RoleDirectory interface {
	Controller(ctx context.Context) (id.AccountID, error)
}

// Handler handles credential ledger endpoints. Key-gated mutations resolve
// the controller account through the role directory, so key rotation and
// controller rotation stay independent.
type Handler struct {
	logger         *slog.Logger
	service        Service
	roles          RoleDirectory
	controllerGate func(http.Handler) http.Handler
	authGate       func(http.Handler) http.Handler
}

func New(
	service Service,
	roles RoleDirectory,
	controllerGate func(http.Handler) http.Handler,
	authGate func(http.Handler) http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		roles:          roles,
		controllerGate: controllerGate,
		authGate:       authGate,
	}
}

// Register registers the credential routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/credentials", func(r chi.Router) {
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/uri", h.handleTokenURI)

		r.Group(func(r chi.Router) {
			r.Use(h.controllerGate)
			r.Post("/mint", h.handleMint)
			r.Post("/safe-mint", h.handleSafeMint)
			r.Post("/{id}/burn", h.handleBurn)
			r.Post("/transfer", h.handleTransfer)
			r.Post("/safe-transfer", h.handleSafeTransfer)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authGate)
			r.Post("/{id}/approve", h.handleApprove)
		})
	})

	r.Get("/v1/accounts/{account}/credentials", h.handleAccountCredentials)

	r.Group(func(r chi.Router) {
		r.Use(h.authGate)
		r.Post("/v1/approvals/operators", h.handleSetOperator)
		r.Put("/v1/receivers", h.handleSetReceiver)
		r.Delete("/v1/receivers", h.handleClearReceiver)
	})
}

type credentialResponse struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	MintedAt time.Time `json:"minted_at"`
}

func toCredentialResponse(c credential.Credential) credentialResponse {
	return credentialResponse{
		ID:       c.ID.String(),
		Owner:    c.Owner.String(),
		MintedAt: c.MintedAt.UTC(),
	}
}

type statsResponse struct {
	TotalSupply uint64 `json:"total_supply"`
	NextID      string `json:"next_id"`
}

type accountCredentialsResponse struct {
	Account     string               `json:"account"`
	Balance     int                  `json:"balance"`
	Credentials []credentialResponse `json:"credentials"`
}

type uriResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[mintRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.controllerAccount(ctx, w)
	if !ok {
		return
	}

	minted, err := h.service.Mint(ctx, caller, req.to)
	if err != nil {
		h.writeServiceError(ctx, w, "mint failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(minted))
}

func (h *Handler) handleSafeMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[mintRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.controllerAccount(ctx, w)
	if !ok {
		return
	}

	minted, err := h.service.SafeMint(ctx, caller, req.to, req.data)
	if err != nil {
		h.writeServiceError(ctx, w, "safe mint failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCredentialResponse(minted))
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller, ok := h.controllerAccount(ctx, w)
	if !ok {
		return
	}

	if err := h.service.Burn(ctx, caller, credentialID); err != nil {
		h.writeServiceError(ctx, w, "burn failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[transferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.controllerAccount(ctx, w)
	if !ok {
		return
	}

	err := h.service.TransferFrom(ctx, caller, req.from, req.to, req.credentialID, req.actor)
	if err != nil {
		h.writeServiceError(ctx, w, "transfer failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSafeTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[transferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.controllerAccount(ctx, w)
	if !ok {
		return
	}

	err := h.service.SafeTransferFromData(ctx, caller, req.from, req.to, req.credentialID, req.actor, req.data)
	if err != nil {
		h.writeServiceError(ctx, w, "safe transfer failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.service.Get(ctx, credentialID)
	if err != nil {
		h.writeServiceError(ctx, w, "credential lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

func (h *Handler) handleTokenURI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	uri, err := h.service.TokenURI(ctx, credentialID)
	if err != nil {
		h.writeServiceError(ctx, w, "token uri failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, uriResponse{ID: credentialID.String(), URI: uri})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "stats failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statsResponse{
		TotalSupply: stats.TotalSupply,
		NextID:      stats.NextID.String(),
	})
}

func (h *Handler) handleAccountCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	balance, err := h.service.BalanceOf(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "balance lookup failed", err)
		return
	}
	creds, err := h.service.CredentialsOf(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "credential list failed", err)
		return
	}

	resp := accountCredentialsResponse{
		Account:     account.String(),
		Balance:     balance,
		Credentials: make([]credentialResponse, 0, len(creds)),
	}
	for _, c := range creds {
		resp.Credentials = append(resp.Credentials, toCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[approveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	if err := h.service.Approve(ctx, caller, credentialID, req.spender); err != nil {
		h.writeServiceError(ctx, w, "approve failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[operatorRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	if err := h.service.SetApprovalForAll(ctx, caller, req.operator, req.Approved); err != nil {
		h.writeServiceError(ctx, w, "operator update failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetReceiver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[receiverRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	if err := h.service.SetReceiver(ctx, caller, req.Endpoint); err != nil {
		h.writeServiceError(ctx, w, "receiver registration failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearReceiver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	if err := h.service.ClearReceiver(ctx, caller); err != nil {
		h.writeServiceError(ctx, w, "receiver clear failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) controllerAccount(ctx context.Context, w http.ResponseWriter) (id.AccountID, bool) {
	caller, err := h.roles.Controller(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "controller account unresolved",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "roles unavailable"))
		return id.AccountID{}, false
	}
	return caller, true
}

func (h *Handler) authenticatedAccount(ctx context.Context, w http.ResponseWriter) (id.AccountID, bool) {
	caller := requestcontext.Account(ctx)
	if caller.IsZero() {
		// Unreachable when the auth middleware is wired.
		h.logger.ErrorContext(ctx, "account missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.AccountID{}, false
	}
	return caller, true
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
