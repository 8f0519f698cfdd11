package handler

//go:generate mockgen -source=handler.go -destination=mocks/eligibility-mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"civitas/internal/eligibility"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

type Service interface {
	EvaluateCached(ctx context.Context, account id.AccountID) (eligibility.Snapshot, error)
	Project(ctx context.Context, account id.AccountID, points int) (eligibility.Curve, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/eligibility", func(r chi.Router) {
		r.Get("/{account}", h.evaluate)
		r.Get("/{account}/projection", h.project)
	})
}

type snapshotResponse struct {
	Account   string    `json:"account"`
	Eligible  bool      `json:"eligible"`
	Balance   int64     `json:"balance"`
	Threshold int64     `json:"threshold"`
	AsOf      time.Time `json:"as_of"`
}

type pointResponse struct {
	At      time.Time `json:"at"`
	Balance int64     `json:"balance"`
}

type curveResponse struct {
	Account      string          `json:"account"`
	VestingStart *time.Time      `json:"vesting_start,omitempty"`
	Points       []pointResponse `json:"points"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snapshot, err := h.service.EvaluateCached(r.Context(), account)
	if err != nil {
		h.writeServiceError(r.Context(), w, "eligibility evaluation failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snapshotResponse{
		Account:   snapshot.Account.String(),
		Eligible:  snapshot.Eligible,
		Balance:   snapshot.Balance,
		Threshold: snapshot.Threshold,
		AsOf:      snapshot.AsOf,
	})
}

func (h *Handler) project(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	points := 0
	if raw := r.URL.Query().Get("points"); raw != "" {
		points, err = strconv.Atoi(raw)
		if err != nil || points < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "points must be a positive integer"))
			return
		}
	}

	curve, err := h.service.Project(r.Context(), account, points)
	if err != nil {
		h.writeServiceError(r.Context(), w, "projection failed", err)
		return
	}

	resp := curveResponse{
		Account:      curve.Account.String(),
		VestingStart: curve.VestingStart,
		Points:       make([]pointResponse, 0, len(curve.Points)),
	}
	for _, p := range curve.Points {
		resp.Points = append(resp.Points, pointResponse{At: p.At, Balance: p.Balance})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
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
