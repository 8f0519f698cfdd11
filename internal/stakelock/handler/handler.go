// Package handler exposes stake lock management over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/stakelock-mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civitas/internal/stakelock"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// Service is the slice of the lock service the transport needs.
type Service interface {
	Create(ctx context.Context, caller id.AccountID, amount int64, maturity time.Time) (stakelock.Lock, error)
	Increase(ctx context.Context, caller id.AccountID, newAmount int64, newMaturity time.Time) (stakelock.Lock, error)
	Withdraw(ctx context.Context, caller id.AccountID) (int64, error)
	Get(ctx context.Context, account id.AccountID) (stakelock.Lock, error)
}

// Handler handles lock endpoints. Mutations are self-service behind the JWT
// gate; the per-account read is public.
type Handler struct {
	logger   *slog.Logger
	service  Service
	authGate func(http.Handler) http.Handler
}

func New(service Service, authGate func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		authGate: authGate,
	}
}

// Register registers the lock routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/locks", func(r chi.Router) {
		r.Get("/{account}", h.handleGetAccount)

		r.Group(func(r chi.Router) {
			r.Use(h.authGate)
			r.Post("/", h.handleCreate)
			r.Patch("/", h.handleIncrease)
			r.Post("/withdraw", h.handleWithdraw)
			r.Get("/", h.handleGetOwn)
		})
	})
}

type lockRequest struct {
	Amount   int64     `json:"amount"`
	Maturity time.Time `json:"maturity"`
}

func (r *lockRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if r.Maturity.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "maturity is required")
	}
	return nil
}

type lockResponse struct {
	Account   string    `json:"account"`
	Amount    int64     `json:"amount"`
	Maturity  time.Time `json:"maturity"`
	CreatedAt time.Time `json:"created_at"`
	State     string    `json:"state"`
}

func toLockResponse(lock stakelock.Lock, at time.Time) lockResponse {
	return lockResponse{
		Account:   lock.Account.String(),
		Amount:    lock.Amount,
		Maturity:  lock.Maturity.UTC(),
		CreatedAt: lock.CreatedAt.UTC(),
		State:     string(lock.StateAt(at)),
	}
}

type withdrawResponse struct {
	Account  string `json:"account"`
	Returned int64  `json:"returned"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[lockRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	lock, err := h.service.Create(ctx, caller, req.Amount, req.Maturity)
	if err != nil {
		h.writeServiceError(ctx, w, "lock create failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toLockResponse(lock, requestcontext.Now(ctx)))
}

func (h *Handler) handleIncrease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[lockRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	lock, err := h.service.Increase(ctx, caller, req.Amount, req.Maturity)
	if err != nil {
		h.writeServiceError(ctx, w, "lock increase failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLockResponse(lock, requestcontext.Now(ctx)))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}

	returned, err := h.service.Withdraw(ctx, caller)
	if err != nil {
		h.writeServiceError(ctx, w, "lock withdraw failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withdrawResponse{
		Account:  caller.String(),
		Returned: returned,
	})
}

func (h *Handler) handleGetOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.authenticatedAccount(ctx, w)
	if !ok {
		return
	}
	h.respondLock(ctx, w, caller)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.respondLock(ctx, w, account)
}

func (h *Handler) respondLock(ctx context.Context, w http.ResponseWriter, account id.AccountID) {
	lock, err := h.service.Get(ctx, account)
	if err != nil {
		h.writeServiceError(ctx, w, "lock lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLockResponse(lock, requestcontext.Now(ctx)))
}

func (h *Handler) authenticatedAccount(ctx context.Context, w http.ResponseWriter) (id.AccountID, bool) {
	caller := requestcontext.Account(ctx)
	if caller.IsZero() {
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
