package activation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
	"github.com/junaidookay/mu-online-hub/internal/paymentprovider"
	"github.com/junaidookay/mu-online-hub/internal/services/access"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ActivateDraft(ctx context.Context, a models.Activation) (models.ActivationResult, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(models.ActivationResult), args.Error(1)
}

func (m *RepoMock) PublishDraft(ctx context.Context, p models.Publication) (models.ActivationResult, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(models.ActivationResult), args.Error(1)
}

func (m *RepoMock) GetListing(ctx context.Context, kind models.Kind, id, userID string) (*models.Listing, error) {
	args := m.Called(ctx, kind, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

type ProviderMock struct {
	mock.Mock
	configured bool
}

func (m *ProviderMock) Configured() bool { return m.configured }

func (m *ProviderMock) Verify(ctx context.Context, ref string) (paymentprovider.Verification, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(paymentprovider.Verification), args.Error(1)
}

func (m *ProviderMock) Capture(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) Notify(ctx context.Context, routingKey string, n models.Notification) error {
	return m.Called(ctx, routingKey, n).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Invalidate(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

const (
	draftID = "0e9d8c7b-6a5f-4e3d-8c1b-0a9f8e7d6c5b"
	userID  = "user-1"
)

type fixture struct {
	repo     *RepoMock
	stripe   *ProviderMock
	paypal   *ProviderMock
	notifier *NotifierMock
	cache    *CacheMock
	svc      *Service
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:     new(RepoMock),
		stripe:   &ProviderMock{configured: true},
		paypal:   &ProviderMock{configured: true},
		notifier: new(NotifierMock),
		cache:    new(CacheMock),
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.stripe, f.paypal, f.notifier, f.cache, nil, newNoopLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) expectSideEffects(slotID int) {
	f.notifier.On("Notify", mock.Anything, rabbitmq.RoutingSlotActivated, mock.Anything).Return(nil).Once()
	f.cache.On("Invalidate", mock.Anything, []string{access.CacheKey(userID, slotID)}).Return(nil).Once()
}

func TestActivate_IdempotentRedelivery(t *testing.T) {
	f := newFixture()
	expires := f.now.Add(7 * 24 * time.Hour)
	a := models.Activation{
		UserID: userID, DraftID: draftID, Kind: models.KindBanner, SlotID: 5,
		Provider: models.ProviderStripe, TransactionRef: "cs_1", RequirePending: true, Now: f.now,
	}
	first := models.ActivationResult{PurchaseID: "p-1", DraftID: draftID, UserID: userID, SlotID: 5, ExpiresAt: &expires, Transitioned: true}
	again := first
	again.Transitioned = false

	f.repo.On("ActivateDraft", mock.Anything, a).Return(first, nil).Once()
	f.repo.On("ActivateDraft", mock.Anything, a).Return(again, models.ErrAlreadyActive).Once()
	f.expectSideEffects(5)

	res1, err := f.svc.Activate(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, res1.Transitioned)

	res2, err := f.svc.Activate(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, res2.Transitioned)
	assert.Equal(t, res1.ExpiresAt, res2.ExpiresAt)

	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
	f.repo.AssertExpectations(t)
}

func TestActivate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		a       models.Activation
		repoErr error
		wantErr error
	}{
		{name: "unknown slot", a: models.Activation{UserID: userID, SlotID: 9}, wantErr: models.ErrUnknownSlot},
		{name: "kind does not fit slot", a: models.Activation{UserID: userID, SlotID: 5, DraftID: draftID, Kind: models.KindServer}, wantErr: models.ErrSlotMismatch},
		{name: "malformed draft id", a: models.Activation{UserID: userID, SlotID: 5, DraftID: "x", Kind: models.KindBanner}, wantErr: models.ErrNotOwner},
		{name: "missing user", a: models.Activation{SlotID: 5}, wantErr: models.ErrValidation},
		{
			name:    "foreign draft",
			a:       models.Activation{UserID: userID, SlotID: 5, DraftID: draftID, Kind: models.KindBanner},
			repoErr: models.ErrNotOwner,
			wantErr: models.ErrNotOwner,
		},
		{
			name:    "no pending purchase",
			a:       models.Activation{UserID: userID, SlotID: 5, RequirePending: true},
			repoErr: models.ErrNoPendingPurchase,
			wantErr: models.ErrNoPendingPurchase,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.repoErr != nil {
				f.repo.On("ActivateDraft", mock.Anything, mock.Anything).Return(models.ActivationResult{}, tt.repoErr)
			}
			_, err := f.svc.Activate(context.Background(), tt.a)
			assert.True(t, errors.Is(err, tt.wantErr), err)
			f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestActivate_CapacityExceeded(t *testing.T) {
	f := newFixture()
	next := f.now.Add(48 * time.Hour)
	f.repo.On("ActivateDraft", mock.Anything, mock.Anything).
		Return(models.ActivationResult{}, &models.CapacityExceededError{SlotID: 8, MaxConcurrent: 1, NextAvailableAt: &next})

	_, err := f.svc.Activate(context.Background(), models.Activation{UserID: userID, SlotID: 8, DraftID: draftID, Kind: models.KindServer})
	var capErr *models.CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, &next, capErr.NextAvailableAt)
}

func TestActivate_SideEffectFailuresDoNotFail(t *testing.T) {
	f := newFixture()
	expires := f.now.Add(time.Hour)
	f.repo.On("ActivateDraft", mock.Anything, mock.Anything).
		Return(models.ActivationResult{PurchaseID: "p-1", UserID: userID, SlotID: 5, ExpiresAt: &expires, Transitioned: true}, nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.cache.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	res, err := f.svc.Activate(context.Background(), models.Activation{UserID: userID, SlotID: 5, RequirePending: true})
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
}

func directRequest() DirectRequest {
	return DirectRequest{
		UserID: userID, StripeSessionID: "cs_1", DraftID: draftID,
		Kind: models.KindBanner, SlotID: 5, DurationDays: 7,
	}
}

func TestActivateDirect(t *testing.T) {
	paidMeta := paymentmeta.Metadata{UserID: userID, SlotID: 5}
	byClient := func(a models.Activation) bool {
		return !a.RequireKnownRef && a.DurationDays == 7
	}
	byKnownPurchase := func(a models.Activation) bool {
		return a.RequireKnownRef && a.DurationDays == 0 && a.PackageID == ""
	}
	paypalRequest := func() DirectRequest {
		r := directRequest()
		r.StripeSessionID, r.PayPalOrderID = "", "ORDER-1"
		return r
	}

	tests := []struct {
		name     string
		req      func() DirectRequest
		setup    func(f *fixture)
		wantErr  error
		activate func(a models.Activation) bool
	}{
		{
			name: "verified payment activates",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").Return(paymentprovider.Verification{
					Ref: "cs_1", State: paymentprovider.StatePaid, Meta: paidMeta,
				}, nil)
			},
			activate: byClient,
		},
		{
			name: "duration comes from paid session metadata",
			req: func() DirectRequest {
				r := directRequest()
				r.DurationDays = 3650
				return r
			},
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").Return(paymentprovider.Verification{
					Ref: "cs_1", State: paymentprovider.StatePaid,
					Meta: paymentmeta.Metadata{UserID: userID, SlotID: 5, DurationDays: 7, PackageID: "pkg-7"},
				}, nil)
			},
			activate: func(a models.Activation) bool {
				return !a.RequireKnownRef && a.DurationDays == 7 && a.PackageID == "pkg-7"
			},
		},
		{
			name: "verification outage falls back to known purchase",
			req: func() DirectRequest {
				r := directRequest()
				r.DurationDays = 3650
				return r
			},
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").
					Return(paymentprovider.Verification{}, models.ErrProviderUnavailable)
			},
			activate: byKnownPurchase,
		},
		{
			name: "missing session is rejected",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").
					Return(paymentprovider.Verification{}, errors.New("resource_missing: No such checkout.session"))
			},
			wantErr: models.ErrPaymentNotConfirmed,
		},
		{
			name: "unconfigured provider is rejected",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.configured = false
			},
			wantErr: models.ErrPaymentNotConfirmed,
		},
		{
			name: "unpaid session is rejected",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").
					Return(paymentprovider.Verification{State: paymentprovider.StateUnpaid}, nil)
			},
			wantErr: models.ErrPaymentNotConfirmed,
		},
		{
			name: "async payment still processing is rejected",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").
					Return(paymentprovider.Verification{State: paymentprovider.StateUnknown, Meta: paidMeta}, nil)
			},
			wantErr: models.ErrPaymentNotConfirmed,
		},
		{
			name: "session of another user is rejected",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").Return(paymentprovider.Verification{
					State: paymentprovider.StatePaid, Meta: paymentmeta.Metadata{UserID: "someone-else", SlotID: 5},
				}, nil)
			},
			wantErr: models.ErrNotOwner,
		},
		{
			name: "session for another slot is rejected",
			req:  directRequest,
			setup: func(f *fixture) {
				f.stripe.On("Verify", mock.Anything, "cs_1").Return(paymentprovider.Verification{
					State: paymentprovider.StatePaid, Meta: paymentmeta.Metadata{UserID: userID, SlotID: 7},
				}, nil)
			},
			wantErr: models.ErrPaymentNotConfirmed,
		},
		{
			name: "approved paypal order is captured",
			req:  paypalRequest,
			setup: func(f *fixture) {
				f.paypal.On("Verify", mock.Anything, "ORDER-1").
					Return(paymentprovider.Verification{State: paymentprovider.StateApproved}, nil)
				f.paypal.On("Capture", mock.Anything, "ORDER-1").Return(nil).Once()
			},
			activate: byClient,
		},
		{
			name: "order captured elsewhere activates",
			req:  paypalRequest,
			setup: func(f *fixture) {
				f.paypal.On("Verify", mock.Anything, "ORDER-1").
					Return(paymentprovider.Verification{State: paymentprovider.StateApproved}, nil).Once()
				f.paypal.On("Capture", mock.Anything, "ORDER-1").Return(errors.New("ORDER_ALREADY_CAPTURED")).Once()
				f.paypal.On("Verify", mock.Anything, "ORDER-1").
					Return(paymentprovider.Verification{State: paymentprovider.StatePaid}, nil).Once()
			},
			activate: byClient,
		},
		{
			name: "declined capture is rejected",
			req:  paypalRequest,
			setup: func(f *fixture) {
				f.paypal.On("Verify", mock.Anything, "ORDER-1").
					Return(paymentprovider.Verification{State: paymentprovider.StateApproved}, nil)
				f.paypal.On("Capture", mock.Anything, "ORDER-1").Return(errors.New("INSTRUMENT_DECLINED")).Once()
			},
			wantErr: models.ErrPaymentNotConfirmed,
		},
		{
			name: "capture outage falls back to known purchase",
			req:  paypalRequest,
			setup: func(f *fixture) {
				f.paypal.On("Verify", mock.Anything, "ORDER-1").
					Return(paymentprovider.Verification{State: paymentprovider.StateApproved}, nil)
				f.paypal.On("Capture", mock.Anything, "ORDER-1").Return(models.ErrProviderUnavailable).Once()
			},
			activate: byKnownPurchase,
		},
		{
			name: "both references",
			req: func() DirectRequest {
				r := directRequest()
				r.PayPalOrderID = "ORDER-1"
				return r
			},
			setup:   func(f *fixture) {},
			wantErr: models.ErrValidation,
		},
		{
			name: "no reference",
			req: func() DirectRequest {
				r := directRequest()
				r.StripeSessionID = ""
				return r
			},
			setup:   func(f *fixture) {},
			wantErr: models.ErrValidation,
		},
		{
			name: "non positive duration",
			req: func() DirectRequest {
				r := directRequest()
				r.DurationDays = 0
				return r
			},
			setup:   func(f *fixture) {},
			wantErr: models.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			req := tt.req()
			if tt.activate != nil {
				expires := f.now.Add(7 * 24 * time.Hour)
				f.repo.On("ActivateDraft", mock.Anything, mock.MatchedBy(func(a models.Activation) bool {
					return !a.RequirePending && a.DraftID == draftID && tt.activate(a) &&
						(a.TransactionRef == req.StripeSessionID || a.TransactionRef == req.PayPalOrderID)
				})).Return(models.ActivationResult{PurchaseID: "p-1", UserID: userID, SlotID: 5, ExpiresAt: &expires, Transitioned: true}, nil).Once()
				f.expectSideEffects(5)
			}

			res, err := f.svc.ActivateDirect(context.Background(), req)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), err)
				f.repo.AssertNotCalled(t, "ActivateDraft", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Transitioned)
			f.repo.AssertExpectations(t)
			f.paypal.AssertExpectations(t)
		})
	}
}

func TestPublish(t *testing.T) {
	free, paid := 6, 7
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("free slot publishes without expiry", func(t *testing.T) {
		f := newFixture()
		f.repo.On("GetListing", mock.Anything, models.KindAdvertisement, draftID, userID).
			Return(&models.Listing{ID: draftID, SlotID: &free, Status: models.StatusDraft}, nil)
		f.repo.On("PublishDraft", mock.Anything, models.Publication{
			UserID: userID, DraftID: draftID, Kind: models.KindAdvertisement, SlotID: 6, Free: true, Now: f.now,
		}).Return(models.ActivationResult{DraftID: draftID, UserID: userID, SlotID: 6, Transitioned: true}, nil)
		f.expectSideEffects(6)

		res, err := f.svc.Publish(context.Background(), models.KindAdvertisement, draftID, userID)
		require.NoError(t, err)
		assert.Nil(t, res.ExpiresAt)
		f.repo.AssertExpectations(t)
	})

	t.Run("paid slot without purchase", func(t *testing.T) {
		f := newFixture()
		f.repo.On("GetListing", mock.Anything, models.KindAdvertisement, draftID, userID).
			Return(&models.Listing{ID: draftID, SlotID: &paid, Status: models.StatusDraft}, nil)
		f.repo.On("PublishDraft", mock.Anything, mock.Anything).Return(models.ActivationResult{}, models.ErrNoActivePurchase)

		_, err := f.svc.Publish(context.Background(), models.KindAdvertisement, draftID, userID)
		assert.True(t, errors.Is(err, models.ErrNoActivePurchase))
	})

	t.Run("already live", func(t *testing.T) {
		f := newFixture()
		f.repo.On("GetListing", mock.Anything, models.KindAdvertisement, draftID, userID).
			Return(&models.Listing{ID: draftID, SlotID: &paid, IsActive: true, Status: models.StatusActive, ExpiresAt: &future}, nil)

		_, err := f.svc.Publish(context.Background(), models.KindAdvertisement, draftID, userID)
		assert.True(t, errors.Is(err, models.ErrDraftActive))
	})

	t.Run("draft without slot", func(t *testing.T) {
		f := newFixture()
		f.repo.On("GetListing", mock.Anything, models.KindServer, draftID, userID).
			Return(&models.Listing{ID: draftID, Status: models.StatusDraft}, nil)

		_, err := f.svc.Publish(context.Background(), models.KindServer, draftID, userID)
		assert.True(t, errors.Is(err, models.ErrValidation))
	})
}
