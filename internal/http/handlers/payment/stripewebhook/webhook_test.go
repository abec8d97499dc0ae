package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentprovider"
	"github.com/junaidookay/mu-online-hub/internal/services/webhook"
)

type MockService struct{ mock.Mock }

func (m *MockService) HandleStripe(ctx context.Context, payload []byte, signature string) (webhook.Outcome, error) {
	args := m.Called(ctx, payload, signature)
	return args.Get(0).(webhook.Outcome), args.Error(1)
}

func TestStripeWebhookHandler(t *testing.T) {
	payload := `{"id":"evt_1","type":"checkout.session.completed"}`
	tests := []struct {
		name           string
		body           string
		setup          func(m *MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "activated",
			setup: func(m *MockService) {
				m.On("HandleStripe", mock.Anything, []byte(payload), "t=1,v1=abc").
					Return(webhook.Outcome{EventID: "evt_1", Status: models.PaymentActivated}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"received":true,"status":"activated"}`,
		},
		{
			name: "redelivery",
			setup: func(m *MockService) {
				m.On("HandleStripe", mock.Anything, mock.Anything, mock.Anything).
					Return(webhook.Outcome{EventID: "evt_1", Duplicate: true}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"received":true,"duplicate":true}`,
		},
		{
			name: "bad signature",
			setup: func(m *MockService) {
				m.On("HandleStripe", mock.Anything, mock.Anything, mock.Anything).
					Return(webhook.Outcome{}, fmt.Errorf("webhook.HandleStripe: %w", models.ErrSignatureInvalid))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid webhook signature"}`,
		},
		{
			name: "signed but malformed body asks for redelivery",
			setup: func(m *MockService) {
				m.On("HandleStripe", mock.Anything, mock.Anything, mock.Anything).
					Return(webhook.Outcome{}, fmt.Errorf("webhook.HandleStripe: %w", paymentprovider.ErrMalformedEvent))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"webhook processing failed"}`,
		},
		{
			name:           "oversized body",
			body:           strings.Repeat("x", int(MaxBodyBytes)+1),
			setup:          func(m *MockService) {},
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   `{"status":"Error","error":"request body too large"}`,
		},
		{
			name: "database failure asks for redelivery",
			setup: func(m *MockService) {
				m.On("HandleStripe", mock.Anything, mock.Anything, mock.Anything).
					Return(webhook.Outcome{}, errors.New("connection refused"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"webhook processing failed"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setup(svc)
			handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

			body := payload
			if tt.body != "" {
				body = tt.body
			}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
