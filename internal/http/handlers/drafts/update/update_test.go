package update

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/junaidookay/mu-online-hub/internal/http/middlewarectx"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

type MockService struct{ mock.Mock }

func (m *MockService) Update(ctx context.Context, kind models.Kind, id, userID string, fields models.ListingFields) error {
	return m.Called(ctx, kind, id, userID, fields).Error(0)
}

func TestUpdateHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(m *MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "owner updates draft",
			body: `{"title":"New title","website_url":"https://mu.example.com"}`,
			setup: func(m *MockService) {
				m.On("Update", mock.Anything, models.KindServer, "d-1", "user-1", mock.MatchedBy(func(f models.ListingFields) bool {
					return f.Title == "New title"
				})).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"id":"d-1"`,
		},
		{
			name: "draft of another user",
			body: `{"title":"New title"}`,
			setup: func(m *MockService) {
				m.On("Update", mock.Anything, models.KindServer, "d-1", "user-1", mock.Anything).
					Return(fmt.Errorf("drafts.Update: %w", models.ErrNotOwner))
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `not owned by caller`,
		},
		{
			name:           "invalid website url",
			body:           `{"title":"t","website_url":"not a url"}`,
			setup:          func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `must be a valid url`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setup(svc)
			handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/drafts/server/d-1", strings.NewReader(tt.body))
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("kind", "server")
			rctx.URLParams.Add("id", "d-1")
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			req = req.WithContext(middlewarectx.WithUserID(ctx, "user-1"))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
