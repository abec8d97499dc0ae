package list

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

type MockService struct{ mock.Mock }

func (m *MockService) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func TestListHandler(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		auth           bool
		setup          func(m *MockService)
		expectedStatus int
	}{
		{
			name:  "defaults",
			query: "",
			auth:  true,
			setup: func(m *MockService) {
				m.On("List", mock.Anything, "user-1", 20, 0).
					Return([]*models.Notification{{ID: "n-1", UserID: "user-1", Title: "Listing activated"}}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "explicit page",
			query: "?limit=5&offset=10",
			auth:  true,
			setup: func(m *MockService) {
				m.On("List", mock.Anything, "user-1", 5, 10).Return([]*models.Notification{}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "garbage paging falls back",
			query: "?limit=abc&offset=-3",
			auth:  true,
			setup: func(m *MockService) {
				m.On("List", mock.Anything, "user-1", 20, 0).Return([]*models.Notification{}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "no user",
			auth:           false,
			setup:          func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "storage error",
			auth: true,
			setup: func(m *MockService) {
				m.On("List", mock.Anything, "user-1", 20, 0).Return(nil, errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setup(svc)
			handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications"+tt.query, nil)
			if tt.auth {
				req = req.WithContext(middlewarectx.WithUserID(req.Context(), "user-1"))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}
