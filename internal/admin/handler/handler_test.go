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

	"civitas/internal/admin/handler/mocks"
	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/audit"
)

type AdminHandlerSuite struct {
	suite.Suite
	ledger *mocks.MockLedger
	roles  *mocks.MockRoles
	trail  *mocks.MockAuditReader
	router chi.Router
	owner  id.AccountID
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedger(ctrl)
	s.roles = mocks.NewMockRoles(ctrl)
	s.trail = mocks.NewMockAuditReader(ctrl)
	s.owner = id.AccountID(uuid.New())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	passthrough := func(next http.Handler) http.Handler { return next }

	handler := New(s.ledger, s.roles, s.trail, passthrough, logger)
	s.router = chi.NewRouter()
	handler.Register(s.router)
}

func (s *AdminHandlerSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func (s *AdminHandlerSuite) TestSetRenderer() {
	s.Run("forwards the endpoint under the owner account", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)
		s.ledger.EXPECT().SetRenderer(gomock.Any(), s.owner, "http://renderer:9090/render").Return(nil)

		w := s.request(http.MethodPut, "/v1/admin/renderer",
			map[string]string{"endpoint": "http://renderer:9090/render"})
		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("empty endpoint restores the static renderer", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)
		s.ledger.EXPECT().SetRenderer(gomock.Any(), s.owner, "").Return(nil)

		w := s.request(http.MethodPut, "/v1/admin/renderer", map[string]string{})
		s.Equal(http.StatusNoContent, w.Code)
	})
}

func (s *AdminHandlerSuite) TestSetController() {
	next := id.AccountID(uuid.New())

	s.Run("rotates the controller", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)
		s.roles.EXPECT().SetController(gomock.Any(), s.owner, next).Return(nil)

		w := s.request(http.MethodPut, "/v1/admin/controller",
			map[string]string{"controller": next.String()})
		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("rejects a malformed controller account", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)

		w := s.request(http.MethodPut, "/v1/admin/controller",
			map[string]string{"controller": "not-a-uuid"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("surfaces an owner-collision conflict", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)
		s.roles.EXPECT().SetController(gomock.Any(), s.owner, next).
			Return(dErrors.New(dErrors.CodeInvalidInput, "owner and controller must be distinct accounts"))

		w := s.request(http.MethodPut, "/v1/admin/controller",
			map[string]string{"controller": next.String()})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *AdminHandlerSuite) TestRecover() {
	to := id.AccountID(uuid.New())

	s.Run("recovers stake to the target account", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)
		s.ledger.EXPECT().RecoverTokens(gomock.Any(), s.owner, id.Asset("CIV"), to, int64(500)).Return(nil)

		w := s.request(http.MethodPost, "/v1/admin/recover",
			map[string]any{"asset": "CIV", "to": to.String(), "amount": 500})
		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("rejects a non-positive amount", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)

		w := s.request(http.MethodPost, "/v1/admin/recover",
			map[string]any{"asset": "CIV", "to": to.String(), "amount": 0})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("rejects a malformed asset", func() {
		s.roles.EXPECT().Owner(gomock.Any()).Return(s.owner, nil)

		w := s.request(http.MethodPost, "/v1/admin/recover",
			map[string]any{"asset": "not an asset!", "to": to.String(), "amount": 500})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *AdminHandlerSuite) TestAudit() {
	holder := id.AccountID(uuid.New())
	events := []audit.Event{{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Account:   holder,
		Subject:   "7",
		Action:    "credential_minted",
	}}

	s.Run("lists recent events with the default limit", func() {
		s.trail.EXPECT().ListRecent(gomock.Any(), defaultAuditLimit).Return(events, nil)

		w := s.request(http.MethodGet, "/v1/admin/audit", nil)

		s.Equal(http.StatusOK, w.Code)
		var resp []map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Require().Len(resp, 1)
		s.Equal("credential_minted", resp[0]["action"])
		s.Equal(holder.String(), resp[0]["account"])
	})

	s.Run("honours an explicit limit", func() {
		s.trail.EXPECT().ListRecent(gomock.Any(), 5).Return(nil, nil)

		w := s.request(http.MethodGet, "/v1/admin/audit?limit=5", nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects an out-of-range limit", func() {
		w := s.request(http.MethodGet, "/v1/admin/audit?limit=100000", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("filters by account", func() {
		s.trail.EXPECT().ListByAccount(gomock.Any(), holder).Return(events, nil)

		w := s.request(http.MethodGet, "/v1/admin/audit?account="+holder.String(), nil)
		s.Equal(http.StatusOK, w.Code)
	})
}
