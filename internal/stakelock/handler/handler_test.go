package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"civitas/internal/stakelock"
	"civitas/internal/stakelock/handler/mocks"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/requestcontext"
)

type LockHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	alice   id.AccountID
	now     time.Time
}

func TestLockHandlerSuite(t *testing.T) {
	suite.Run(t, new(LockHandlerSuite))
}

func (s *LockHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.alice = id.AccountID(uuid.New())
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	passthrough := func(next http.Handler) http.Handler { return next }

	handler := New(s.service, passthrough, logger)
	s.router = chi.NewRouter()
	handler.Register(s.router)
}

func (s *LockHandlerSuite) do(method, path string, body any, caller id.AccountID) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := requestcontext.WithTime(req.Context(), s.now)
	if !caller.IsZero() {
		ctx = requestcontext.WithAccount(ctx, caller)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *LockHandlerSuite) sampleLock() stakelock.Lock {
	return stakelock.Lock{
		Account:   s.alice,
		Amount:    5000,
		Maturity:  s.now.Add(2 * 365 * 24 * time.Hour),
		CreatedAt: s.now,
	}
}

func (s *LockHandlerSuite) TestCreate() {
	s.Run("creates a lock for the authenticated caller", func() {
		maturity := s.now.Add(365 * 24 * time.Hour)
		s.service.EXPECT().Create(gomock.Any(), s.alice, int64(5000), maturity).
			Return(s.sampleLock(), nil)

		w := s.do(http.MethodPost, "/v1/locks", map[string]any{
			"amount":   5000,
			"maturity": maturity,
		}, s.alice)

		s.Equal(http.StatusCreated, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(s.alice.String(), resp["account"])
		s.Equal(float64(5000), resp["amount"])
		s.Equal(string(stakelock.StateActive), resp["state"])
	})

	s.Run("rejects a non-positive amount", func() {
		w := s.do(http.MethodPost, "/v1/locks", map[string]any{
			"amount":   0,
			"maturity": s.now.Add(time.Hour),
		}, s.alice)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("rejects a missing maturity", func() {
		w := s.do(http.MethodPost, "/v1/locks", map[string]any{"amount": 100}, s.alice)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("maps an active lock conflict to 409", func() {
		maturity := s.now.Add(time.Hour)
		s.service.EXPECT().Create(gomock.Any(), s.alice, int64(100), maturity).
			Return(stakelock.Lock{}, dErrors.New(dErrors.CodeLockActive, "account already has an active lock"))

		w := s.do(http.MethodPost, "/v1/locks", map[string]any{
			"amount":   100,
			"maturity": maturity,
		}, s.alice)
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("fails when no account is in context", func() {
		w := s.do(http.MethodPost, "/v1/locks", map[string]any{
			"amount":   100,
			"maturity": s.now.Add(time.Hour),
		}, id.AccountID{})
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}

func (s *LockHandlerSuite) TestIncrease() {
	s.Run("raises the lock", func() {
		maturity := s.now.Add(3 * 365 * 24 * time.Hour)
		raised := s.sampleLock()
		raised.Amount = 8000
		raised.Maturity = maturity
		s.service.EXPECT().Increase(gomock.Any(), s.alice, int64(8000), maturity).
			Return(raised, nil)

		w := s.do(http.MethodPatch, "/v1/locks", map[string]any{
			"amount":   8000,
			"maturity": maturity,
		}, s.alice)

		s.Equal(http.StatusOK, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(float64(8000), resp["amount"])
	})

	s.Run("maps a non-increase to 400", func() {
		maturity := s.now.Add(time.Hour)
		s.service.EXPECT().Increase(gomock.Any(), s.alice, int64(10), maturity).
			Return(stakelock.Lock{}, dErrors.New(dErrors.CodeLockNotIncreased, "new terms must extend the lock"))

		w := s.do(http.MethodPatch, "/v1/locks", map[string]any{
			"amount":   10,
			"maturity": maturity,
		}, s.alice)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *LockHandlerSuite) TestWithdraw() {
	s.Run("returns the withdrawn amount", func() {
		s.service.EXPECT().Withdraw(gomock.Any(), s.alice).Return(int64(5000), nil)

		w := s.do(http.MethodPost, "/v1/locks/withdraw", nil, s.alice)

		s.Equal(http.StatusOK, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(s.alice.String(), resp["account"])
		s.Equal(float64(5000), resp["returned"])
	})

	s.Run("maps an unexpired lock to 409", func() {
		s.service.EXPECT().Withdraw(gomock.Any(), s.alice).
			Return(int64(0), dErrors.New(dErrors.CodeLockNotExpired, "lock has not matured"))

		w := s.do(http.MethodPost, "/v1/locks/withdraw", nil, s.alice)
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("maps a missing lock to 404", func() {
		s.service.EXPECT().Withdraw(gomock.Any(), s.alice).
			Return(int64(0), dErrors.New(dErrors.CodeNoActiveLock, "account has no lock"))

		w := s.do(http.MethodPost, "/v1/locks/withdraw", nil, s.alice)
		s.Equal(http.StatusNotFound, w.Code)
	})
}

func (s *LockHandlerSuite) TestGet() {
	s.Run("reads the caller's own lock", func() {
		s.service.EXPECT().Get(gomock.Any(), s.alice).Return(s.sampleLock(), nil)

		w := s.do(http.MethodGet, "/v1/locks", nil, s.alice)

		s.Equal(http.StatusOK, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(s.alice.String(), resp["account"])
	})

	s.Run("reads any account without authentication", func() {
		other := id.AccountID(uuid.New())
		lock := s.sampleLock()
		lock.Account = other
		s.service.EXPECT().Get(gomock.Any(), other).Return(lock, nil)

		w := s.do(http.MethodGet, "/v1/locks/"+other.String(), nil, id.AccountID{})

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects a malformed account", func() {
		w := s.do(http.MethodGet, "/v1/locks/not-a-uuid", nil, id.AccountID{})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
