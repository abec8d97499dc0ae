package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

type MockService struct{ mock.Mock }

func (m *MockService) Publish(ctx context.Context, kind models.Kind, draftID, userID string) (models.ActivationResult, error) {
	args := m.Called(ctx, kind, draftID, userID)
	return args.Get(0).(models.ActivationResult), args.Error(1)
}

func TestPublishHandler(t *testing.T) {
	expires := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name           string
		setup          func(m *MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "published",
			setup: func(m *MockService) {
				m.On("Publish", mock.Anything, models.KindBanner, "d-1", "user-1").
					Return(models.ActivationResult{ExpiresAt: &expires, Transitioned: true}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"expiresAt":"2025-03-08T00:00:00Z"}`,
		},
		{
			name: "no paid purchase",
			setup: func(m *MockService) {
				m.On("Publish", mock.Anything, models.KindBanner, "d-1", "user-1").
					Return(models.ActivationResult{}, fmt.Errorf("activation.Publish: %w", models.ErrNoActivePurchase))
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedBody:   `{"status":"Error","error":"no active purchase for slot"}`,
		},
		{
			name: "slot full",
			setup: func(m *MockService) {
				m.On("Publish", mock.Anything, models.KindBanner, "d-1", "user-1").
					Return(models.ActivationResult{}, &models.CapacityExceededError{SlotID: 5, MaxConcurrent: 4})
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"slot is full","slotId":5}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setup(svc)
			handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/drafts/banner/d-1/publish", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("kind", "banner")
			rctx.URLParams.Add("id", "d-1")
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			req = req.WithContext(middlewarectx.WithUserID(ctx, "user-1"))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
