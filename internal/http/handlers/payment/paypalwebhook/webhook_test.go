package paypalwebhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/junaidookay/mu-online-hub/internal/http/handlers/payment/stripewebhook"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/services/webhook"
)

type MockService struct{ mock.Mock }

func (m *MockService) HandlePayPal(ctx context.Context, r *http.Request, body []byte) (webhook.Outcome, error) {
	args := m.Called(ctx, r, body)
	return args.Get(0).(webhook.Outcome), args.Error(1)
}

func TestPayPalWebhookHandler(t *testing.T) {
	body := `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`

	t.Run("unverified event is acknowledged", func(t *testing.T) {
		svc := new(MockService)
		svc.On("HandlePayPal", mock.Anything, mock.Anything, []byte(body)).
			Return(webhook.Outcome{EventID: "WH-1", Status: models.PaymentUnverified}, nil)
		handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true,"status":"unverified"}`, w.Body.String())
	})

	t.Run("signature failure", func(t *testing.T) {
		svc := new(MockService)
		svc.On("HandlePayPal", mock.Anything, mock.Anything, mock.Anything).
			Return(webhook.Outcome{}, models.ErrSignatureInvalid)
		handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized body is not passed to signature check", func(t *testing.T) {
		svc := new(MockService)
		handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

		big := strings.Repeat("x", int(stripewebhook.MaxBodyBytes)+1)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(big))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.JSONEq(t, `{"status":"Error","error":"request body too large"}`, w.Body.String())
		svc.AssertNotCalled(t, "HandlePayPal", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("body at the limit is accepted", func(t *testing.T) {
		exact := strings.Repeat(" ", int(stripewebhook.MaxBodyBytes)-len(body)) + body
		svc := new(MockService)
		svc.On("HandlePayPal", mock.Anything, mock.Anything, []byte(exact)).
			Return(webhook.Outcome{EventID: "WH-1", Status: models.PaymentIgnored}, nil)
		handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(exact))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})
}
