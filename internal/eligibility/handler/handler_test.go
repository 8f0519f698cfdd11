package handler

import (
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

	"civitas/internal/eligibility"
	"civitas/internal/eligibility/handler/mocks"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
)

type EligibilityHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	alice   id.AccountID
}

func TestEligibilityHandlerSuite(t *testing.T) {
	suite.Run(t, new(EligibilityHandlerSuite))
}

func (s *EligibilityHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.alice = id.AccountID(uuid.New())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := New(s.service, logger)
	s.router = chi.NewRouter()
	handler.Register(s.router)
}

func (s *EligibilityHandlerSuite) request(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (s *EligibilityHandlerSuite) TestEvaluate() {
	s.Run("returns the cached snapshot", func() {
		asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().EvaluateCached(gomock.Any(), s.alice).Return(eligibility.Snapshot{
			Account:   s.alice,
			Eligible:  true,
			Balance:   1500,
			Threshold: 1000,
			AsOf:      asOf,
		}, nil)

		w := s.request("/v1/eligibility/" + s.alice.String())

		s.Equal(http.StatusOK, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(s.alice.String(), resp["account"])
		s.Equal(true, resp["eligible"])
		s.Equal(float64(1500), resp["balance"])
		s.Equal(float64(1000), resp["threshold"])
	})

	s.Run("rejects a malformed account", func() {
		w := s.request("/v1/eligibility/not-a-uuid")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("maps internal failures to 500", func() {
		s.service.EXPECT().EvaluateCached(gomock.Any(), s.alice).
			Return(eligibility.Snapshot{}, dErrors.New(dErrors.CodeInternal, "failed to load lock"))

		w := s.request("/v1/eligibility/" + s.alice.String())
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}

func (s *EligibilityHandlerSuite) TestProject() {
	s.Run("forwards the points parameter", func() {
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().Project(gomock.Any(), s.alice, 8).Return(eligibility.Curve{
			Account:      s.alice,
			VestingStart: &start,
			Points: []eligibility.Point{
				{At: start, Balance: 1000},
				{At: start.Add(time.Hour), Balance: 999},
			},
		}, nil)

		w := s.request("/v1/eligibility/" + s.alice.String() + "/projection?points=8")

		s.Equal(http.StatusOK, w.Code)
		var resp struct {
			Account      string     `json:"account"`
			VestingStart *time.Time `json:"vesting_start"`
			Points       []struct {
				Balance int64 `json:"balance"`
			} `json:"points"`
		}
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(s.alice.String(), resp.Account)
		s.Require().NotNil(resp.VestingStart)
		s.Len(resp.Points, 2)
		s.Equal(int64(1000), resp.Points[0].Balance)
	})

	s.Run("defaults points when the parameter is absent", func() {
		s.service.EXPECT().Project(gomock.Any(), s.alice, 0).Return(eligibility.Curve{Account: s.alice}, nil)

		w := s.request("/v1/eligibility/" + s.alice.String() + "/projection")
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects non-numeric points", func() {
		w := s.request("/v1/eligibility/" + s.alice.String() + "/projection?points=many")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
