package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/lifecycle"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) sip(action string, id uuid.UUID) (*entities.SIPRegistration, error) {
	args := m.Called(action, id)
	reg, _ := args.Get(0).(*entities.SIPRegistration)
	return reg, args.Error(1)
}

func (m *mockLifecycle) PauseSIP(_ context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	return m.sip("pause", id)
}

func (m *mockLifecycle) ResumeSIP(_ context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	return m.sip("resume", id)
}

func (m *mockLifecycle) CancelSIP(_ context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	return m.sip("cancel", id)
}

func (m *mockLifecycle) CloseFolio(_ context.Context, id uuid.UUID) (lifecycle.FolioClosure, error) {
	args := m.Called(id)
	return args.Get(0).(lifecycle.FolioClosure), args.Error(1)
}

func (m *mockLifecycle) CancelTransaction(_ context.Context, id uuid.UUID) (*entities.Transaction, error) {
	args := m.Called(id)
	txn, _ := args.Get(0).(*entities.Transaction)
	return txn, args.Error(1)
}

func lifecycleRouter(svc LifecycleService) *gin.Engine {
	h := NewLifecycleHandler(svc, logger.NewNop(), false)
	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.POST("/sips/:id/pause", h.PauseSIP)
	v1.POST("/sips/:id/resume", h.ResumeSIP)
	v1.POST("/sips/:id/cancel", h.CancelSIP)
	v1.POST("/folios/:id/close", h.CloseFolio)
	v1.POST("/transactions/:id/cancel", h.CancelTransaction)
	return r
}

func TestLifecycleHandler_SIPActions(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		action string
		status entities.SIPStatus
	}{
		{"pause", entities.SIPStatusPaused},
		{"resume", entities.SIPStatusActive},
		{"cancel", entities.SIPStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			svc := new(mockLifecycle)
			svc.On("sip", tt.action, id).Return(&entities.SIPRegistration{ID: id, Status: tt.status}, nil)

			w := perform(lifecycleRouter(svc), http.MethodPost, fmt.Sprintf("/api/v1/sips/%s/%s", id, tt.action), "")

			require.Equal(t, http.StatusOK, w.Code)
			var reg entities.SIPRegistration
			require.NoError(t, json.Unmarshal(decode(t, w).Data, &reg))
			assert.Equal(t, tt.status, reg.Status)
			svc.AssertExpectations(t)
		})
	}
}

func TestLifecycleHandler_StateErrorsAreConflicts(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		path string
		err  error
		code string
	}{
		{"pause paused sip", "/api/v1/sips/%s/pause", entities.ErrSIPNotActive, "SIP_NOT_ACTIVE"},
		{"cancel completed sip", "/api/v1/sips/%s/cancel", entities.ErrSIPTerminal, "SIP_TERMINAL"},
		{"cancel allotted transaction", "/api/v1/transactions/%s/cancel", entities.ErrInvalidTransition, "INVALID_TRANSITION"},
		{"lost race", "/api/v1/sips/%s/resume", fmt.Errorf("failed to resume sip: %w", repositories.ErrConcurrentUpdate), "CONCURRENT_UPDATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockLifecycle)
			svc.On("sip", mock.Anything, id).Return(nil, tt.err)
			svc.On("CancelTransaction", id).Return(nil, tt.err)

			w := perform(lifecycleRouter(svc), http.MethodPost, fmt.Sprintf(tt.path, id), "")

			assert.Equal(t, http.StatusConflict, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestLifecycleHandler_CloseFolio(t *testing.T) {
	id := uuid.New()
	closedAt := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	svc := new(mockLifecycle)
	svc.On("CloseFolio", id).Return(lifecycle.FolioClosure{
		Folio:           &entities.Folio{ID: id, Status: entities.FolioStatusClosed, ClosedAt: &closedAt},
		RemainingActive: 2,
	}, nil)

	w := perform(lifecycleRouter(svc), http.MethodPost, "/api/v1/folios/"+id.String()+"/close", "")

	require.Equal(t, http.StatusOK, w.Code)
	var closure lifecycle.FolioClosure
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &closure))
	assert.Equal(t, entities.FolioStatusClosed, closure.Folio.Status)
	assert.Equal(t, 2, closure.RemainingActive)
}

func TestLifecycleHandler_UnknownFolioIsNotFound(t *testing.T) {
	id := uuid.New()
	svc := new(mockLifecycle)
	svc.On("CloseFolio", id).Return(lifecycle.FolioClosure{}, fmt.Errorf("failed to load folio: %w", repositories.ErrNotFound))

	w := perform(lifecycleRouter(svc), http.MethodPost, "/api/v1/folios/"+id.String()+"/close", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

func TestLifecycleHandler_MalformedID(t *testing.T) {
	svc := new(mockLifecycle)

	w := perform(lifecycleRouter(svc), http.MethodPost, "/api/v1/transactions/not-a-uuid/cancel", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "CancelTransaction", mock.Anything)
}
