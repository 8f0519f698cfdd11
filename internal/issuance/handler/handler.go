package handler

//go:generate mockgen -source=handler.go -destination=mocks/issuance-mocks.go -package=mocks

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

type Service interface {
	Claim(ctx context.Context, caller id.AccountID) (credential.Credential, error)
}

type Handler struct {
	service  Service
	authGate func(http.Handler) http.Handler
	logger   *slog.Logger
}

func New(service Service, authGate func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: service, authGate: authGate, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authGate)
		r.Post("/v1/credentials/claim", h.claim)
	})
}

type claimResponse struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	MintedAt time.Time `json:"minted_at"`
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Account(ctx)
	if caller.IsZero() {
		h.logger.ErrorContext(ctx, "authenticated route reached without an account",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	minted, err := h.service.Claim(ctx, caller)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "claim failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		} else {
			h.logger.WarnContext(ctx, "claim rejected",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, claimResponse{
		ID:       minted.ID.String(),
		Owner:    minted.Owner.String(),
		MintedAt: minted.MintedAt,
	})
}
