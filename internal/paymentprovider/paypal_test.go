package paymentprovider

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
)

type paypalServer struct {
	mux          *http.ServeMux
	capturedBody map[string]any
	verifyStatus string
}

func newTestPayPal(t *testing.T, configure func(s *paypalServer)) *PayPal {
	t.Helper()
	ps := &paypalServer{mux: http.NewServeMux(), verifyStatus: "SUCCESS"}
	ps.mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"A21AA","token_type":"Bearer","expires_in":32400}`))
	})
	ps.mux.HandleFunc("POST /v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		ps.capturedBody = req
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verification_status":"` + ps.verifyStatus + `"}`))
	})
	if configure != nil {
		configure(ps)
	}
	srv := httptest.NewServer(ps.mux)
	t.Cleanup(srv.Close)

	p, err := NewPayPal(config.PayPalConfig{ClientID: "client", Secret: "secret", APIBase: srv.URL, WebhookID: "WH-1"})
	require.NoError(t, err)
	return p
}

func TestPayPal_NotConfigured(t *testing.T) {
	p, err := NewPayPal(config.PayPalConfig{APIBase: "https://api-m.sandbox.paypal.com"})
	require.NoError(t, err)
	assert.False(t, p.Configured())
	assert.False(t, p.WebhookConfigured())

	_, err = p.CreateCheckout(t.Context(), CheckoutRequest{})
	assert.True(t, errors.Is(err, models.ErrProviderNotConfigured))
	_, err = p.Verify(t.Context(), "ORDER-1")
	assert.True(t, errors.Is(err, models.ErrProviderNotConfigured))
}

func TestPayPal_CreateCheckout(t *testing.T) {
	var customID string
	p := newTestPayPal(t, func(s *paypalServer) {
		s.mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer A21AA", r.Header.Get("Authorization"))
			var body struct {
				Intent        string `json:"intent"`
				PurchaseUnits []struct {
					CustomID string `json:"custom_id"`
					Amount   struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
				} `json:"purchase_units"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "CAPTURE", body.Intent)
			require.Len(t, body.PurchaseUnits, 1)
			assert.Equal(t, "USD", body.PurchaseUnits[0].Amount.CurrencyCode)
			assert.Equal(t, "25.00", body.PurchaseUnits[0].Amount.Value)
			customID = body.PurchaseUnits[0].CustomID

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[
				{"href":"https://api.sandbox.paypal.com/v2/checkout/orders/ORDER-1","rel":"self","method":"GET"},
				{"href":"https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1","rel":"approve","method":"GET"}]}`))
		})
	})

	sess, err := p.CreateCheckout(t.Context(), CheckoutRequest{
		Meta:        bannerMeta(),
		AmountCents: 2500,
		Currency:    "usd",
		ProductName: "Premium Banners - 7 days",
		SuccessURL:  "https://hub.example/success",
		CancelURL:   "https://hub.example/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", sess.ID)
	assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1", sess.URL)

	meta, err := paymentmeta.DecodeCustomID(customID)
	require.NoError(t, err)
	assert.Equal(t, bannerMeta(), meta)
}

func TestPayPal_CreateCheckoutUnavailable(t *testing.T) {
	p := newTestPayPal(t, func(s *paypalServer) {
		s.mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"name":"SERVICE_UNAVAILABLE","message":"try later"}`))
		})
	})

	_, err := p.CreateCheckout(t.Context(), CheckoutRequest{Meta: bannerMeta(), AmountCents: 100, Currency: "usd"})
	assert.True(t, errors.Is(err, models.ErrProviderUnavailable))
}

func TestPayPal_VerifyAndCapture(t *testing.T) {
	captured := false
	p := newTestPayPal(t, func(s *paypalServer) {
		s.mux.HandleFunc("GET /v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"APPROVED","purchase_units":[
				{"custom_id":"{\"u\":\"user-1\",\"s\":5,\"d\":\"draft-1\",\"t\":\"banner\",\"n\":7}",
				 "amount":{"currency_code":"USD","value":"25.00"}}]}`))
		})
		s.mux.HandleFunc("POST /v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
			captured = true
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED"}`))
		})
		s.mux.HandleFunc("GET /v2/checkout/orders/MISSING", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND","message":"not found"}`))
		})
	})

	v, err := p.Verify(t.Context(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, StateApproved, v.State)
	assert.Equal(t, int64(2500), v.AmountCents)
	assert.Equal(t, "USD", v.Currency)
	require.NoError(t, v.MetaErr)
	assert.Equal(t, bannerMeta(), v.Meta)

	require.NoError(t, p.Capture(t.Context(), "ORDER-1"))
	assert.True(t, captured)

	_, err = p.Verify(t.Context(), "MISSING")
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrProviderUnavailable))
}

func TestPayPal_VerifyWebhook(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr error
	}{
		{name: "success", status: "SUCCESS"},
		{name: "failure", status: "FAILURE", wantErr: models.ErrSignatureInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var server *paypalServer
			p := newTestPayPal(t, func(s *paypalServer) {
				s.verifyStatus = tt.status
				server = s
			})
			body := []byte(`{"id":"WH-EVT-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{}}`)
			r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(""))
			r.Header.Set("Paypal-Transmission-Id", "tx-1")
			r.Header.Set("Paypal-Transmission-Sig", "sig")
			r.Header.Set("Paypal-Auth-Algo", "SHA256withRSA")

			err := p.VerifyWebhook(t.Context(), r, body)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "WH-1", server.capturedBody["webhook_id"])
			assert.Equal(t, "tx-1", server.capturedBody["transmission_id"])
		})
	}
}

func TestPayPal_ParseEvent(t *testing.T) {
	p, err := NewPayPal(config.PayPalConfig{})
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        string
		wantRef     string
		wantCapture string
		wantState   State
		wantAmount  int64
		wantMetaErr bool
		wantMeta    paymentmeta.Metadata
	}{
		{
			name: "order approved",
			body: `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1","status":"APPROVED",
				"purchase_units":[{"custom_id":"{\"u\":\"user-1\",\"s\":5,\"d\":\"draft-1\",\"t\":\"banner\",\"n\":7}",
				"amount":{"currency_code":"USD","value":"25.00"}}]}}`,
			wantRef:    "ORDER-1",
			wantState:  StateApproved,
			wantAmount: 2500,
			wantMeta:   bannerMeta(),
		},
		{
			name: "capture completed uses related order id",
			body: `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAPTURE-1","status":"COMPLETED",
				"custom_id":"slot_5_user-1","amount":{"currency_code":"USD","value":"25.00"},
				"supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`,
			wantRef:     "ORDER-1",
			wantCapture: "CAPTURE-1",
			wantState:   StatePaid,
			wantAmount:  2500,
			wantMeta:    paymentmeta.Metadata{Type: paymentmeta.TypeSlot, SlotID: 5, UserID: "user-1"},
		},
		{
			name: "unparseable custom id",
			body: `{"id":"WH-3","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAPTURE-2",
				"custom_id":"garbage","amount":{"currency_code":"USD","value":"10.00"}}}`,
			wantRef:     "CAPTURE-2",
			wantCapture: "CAPTURE-2",
			wantState:   StatePaid,
			wantAmount:  1000,
			wantMetaErr: true,
		},
		{
			name:      "other event type",
			body:      `{"id":"WH-4","event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"CAPTURE-3"}}`,
			wantState: StateUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := p.ParseEvent([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, evt.Ref)
			assert.Equal(t, tt.wantCapture, evt.CaptureID)
			assert.Equal(t, tt.wantState, evt.State)
			assert.Equal(t, tt.wantAmount, evt.AmountCents)
			if tt.wantMetaErr {
				assert.True(t, errors.Is(evt.MetaErr, paymentmeta.ErrUnparseable))
				assert.Equal(t, models.ProductTypeUnknown, evt.Meta.ProductType())
				return
			}
			if tt.wantMeta != (paymentmeta.Metadata{}) {
				require.NoError(t, evt.MetaErr)
				assert.Equal(t, tt.wantMeta, evt.Meta)
			}
		})
	}
}

func TestPayPal_ParseEventMalformed(t *testing.T) {
	p, err := NewPayPal(config.PayPalConfig{})
	require.NoError(t, err)

	for _, body := range []string{`{`, `{"event_type":"CHECKOUT.ORDER.APPROVED"}`, `{"id":"WH-1"}`} {
		_, err := p.ParseEvent([]byte(body))
		assert.True(t, errors.Is(err, ErrMalformedEvent), body)
	}
}
