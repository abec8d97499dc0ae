// Package checkout оформление покупки слота: проверки, сессия у провайдера и ожидающая покупка.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/metrics"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/paymentmeta"
	"github.com/junaidookay/mu-online-hub/internal/paymentprovider"
	"github.com/junaidookay/mu-online-hub/internal/services/drafts"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Repository операции хранилища, нужные для оформления.
type Repository interface {
	GetPackage(ctx context.Context, id string) (*models.PricingPackage, error)
	GetListing(ctx context.Context, kind models.Kind, id, userID string) (*models.Listing, error)
	SlotUsage(ctx context.Context, kind models.Kind, slotID int, now time.Time) (models.SlotUsage, error)
	CreatePendingPurchase(ctx context.Context, p models.SlotPurchase) (string, error)
	MarkListingPending(ctx context.Context, kind models.Kind, id, userID string, slotID int) error
}

// Request запрос на оформление.
type Request struct {
	UserID     string
	PackageID  string
	SlotID     *int
	DraftID    string
	DraftType  string
	Provider   models.Provider
	SuccessURL string
	CancelURL  string
}

// Result ответ клиенту: ссылка на оплату, бесплатный пакет или отсутствие настроек провайдера.
type Result struct {
	URL                string          `json:"url,omitempty"`
	Free               bool            `json:"free,omitempty"`
	NeedsConfiguration bool            `json:"needsConfiguration,omitempty"`
	SessionID          string          `json:"sessionId,omitempty"`
	Provider           models.Provider `json:"provider,omitempty"`
}

type Service struct {
	repo      Repository
	providers map[models.Provider]paymentprovider.Provider
	currency  string
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewService принимает адаптеры провайдеров; ключом служит их Name().
func NewService(repo Repository, providers []paymentprovider.Provider, currency string,
	m *metrics.Metrics, log *slog.Logger) *Service {
	byName := make(map[models.Provider]paymentprovider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		repo:      repo,
		providers: byName,
		currency:  currency,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Start оформляет покупку. Ожидающая покупка записывается только после того,
// как провайдер вернул сессию: при ошибке провайдера состояние не меняется.
func (s *Service) Start(ctx context.Context, req Request) (Result, error) {
	const op = "checkout.Start"
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if req.Provider == "" {
		req.Provider = models.ProviderStripe
	}
	provider, ok := s.providers[req.Provider]
	if !ok {
		s.metrics.Checkout(string(req.Provider), "invalid")
		return Result{}, fmt.Errorf("%s: %w", op, models.ErrUnknownProvider)
	}

	pkg, kind, err := s.validate(ctx, req)
	if err != nil {
		s.metrics.Checkout(string(req.Provider), "invalid")
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if pkg.IsFree() {
		s.metrics.Checkout(string(req.Provider), "free")
		return Result{URL: req.SuccessURL, Free: true}, nil
	}
	if !provider.Configured() {
		log.Warn("payment provider is not configured", slog.String("provider", string(req.Provider)))
		s.metrics.Checkout(string(req.Provider), "not_configured")
		return Result{NeedsConfiguration: true, Provider: req.Provider}, nil
	}

	slot, _ := slots.Get(pkg.SlotID)
	usage, err := s.repo.SlotUsage(ctx, slot.Kind, slot.ID, s.now())
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if usage.Full() {
		s.metrics.Checkout(string(req.Provider), "capacity_exceeded")
		return Result{}, fmt.Errorf("%s: %w", op, &models.CapacityExceededError{
			SlotID:          slot.ID,
			MaxConcurrent:   *usage.MaxConcurrent,
			NextAvailableAt: usage.NextAvailableAt,
		})
	}

	currency := pkg.Currency
	if currency == "" {
		currency = s.currency
	}
	meta := paymentmeta.Metadata{
		UserID:       req.UserID,
		SlotID:       pkg.SlotID,
		DraftID:      req.DraftID,
		DraftType:    kind,
		DurationDays: pkg.DurationDays,
		Type:         paymentmeta.TypeSlot,
		PackageID:    pkg.ID,
	}
	sess, err := provider.CreateCheckout(ctx, paymentprovider.CheckoutRequest{
		Meta:        meta,
		AmountCents: pkg.PriceCents,
		Currency:    currency,
		ProductName: fmt.Sprintf("%s: %s", slot.Name, pkg.Name),
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		s.metrics.Checkout(string(req.Provider), resultLabel(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if sess.Provider == models.ProviderPayPal {
		log = log.With(sl.Correlation("", sess.ID, ""))
	} else {
		log = log.With(sl.Correlation("", "", sess.ID))
	}

	purchase := models.SlotPurchase{
		UserID:         req.UserID,
		SlotID:         pkg.SlotID,
		PackageID:      &pkg.ID,
		Provider:       sess.Provider,
		TransactionRef: &sess.ID,
		Status:         models.PurchasePending,
	}
	if req.DraftID != "" {
		purchase.DraftID = &req.DraftID
		purchase.DraftType = &kind
	}
	purchaseID, err := s.repo.CreatePendingPurchase(ctx, purchase)
	if err != nil {
		// сессия у провайдера уже создана: вебхук без ожидающей покупки попадёт в аудит как unmatched
		log.Error("failed to record pending purchase", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if req.DraftID != "" {
		if err := s.repo.MarkListingPending(ctx, kind, req.DraftID, req.UserID, pkg.SlotID); err != nil {
			log.Warn("failed to mark draft as pending payment", slog.String("draft_id", req.DraftID), sl.Err(err))
		}
	}

	s.metrics.Checkout(string(req.Provider), "created")
	log.Info("checkout session created", slog.String("purchase_id", purchaseID), slog.Int("slot_id", pkg.SlotID))
	return Result{URL: sess.URL, SessionID: sess.ID, Provider: sess.Provider}, nil
}

func (s *Service) validate(ctx context.Context, req Request) (*models.PricingPackage, models.Kind, error) {
	if req.UserID == "" {
		return nil, "", fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	if _, err := uuid.Parse(req.PackageID); err != nil {
		return nil, "", models.ErrPackageNotFound
	}
	pkg, err := s.repo.GetPackage(ctx, req.PackageID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, "", models.ErrPackageNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if !pkg.IsActive {
		return nil, "", models.ErrPackageNotFound
	}
	if req.SlotID != nil && *req.SlotID != pkg.SlotID {
		return nil, "", models.ErrSlotMismatch
	}
	slot, err := slots.Lookup(pkg.SlotID)
	if err != nil {
		return nil, "", err
	}

	if req.DraftID == "" {
		return pkg, "", nil
	}
	kind := slot.Kind
	if req.DraftType != "" {
		if kind, err = models.ParseKind(req.DraftType); err != nil {
			return nil, "", err
		}
	}
	if err := slots.Accepts(slot.ID, kind); err != nil {
		return nil, "", err
	}
	if err := drafts.ValidID(req.DraftID); err != nil {
		return nil, "", err
	}
	l, err := s.repo.GetListing(ctx, kind, req.DraftID, req.UserID)
	if err != nil {
		return nil, "", err
	}
	if l.IsLive(s.now()) {
		return nil, "", models.ErrDraftActive
	}
	return pkg, kind, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrProviderNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}
