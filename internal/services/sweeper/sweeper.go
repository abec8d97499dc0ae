// Package sweeper фоновое снятие истёкших объявлений и покупок.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/lib/rabbitmq"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/metrics"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/services/notification"
)

type Repository interface {
	ExpireListings(ctx context.Context, now time.Time) ([]models.ExpiredListing, error)
	ExpirePurchases(ctx context.Context, now time.Time) (int64, error)
	ExpireAbandonedCheckouts(ctx context.Context, cutoff time.Time) (int, error)
}

// Report итог одного прохода.
type Report struct {
	Listings  int
	Purchases int64
	Abandoned int
}

type Service struct {
	repo       Repository
	notifier   notification.Notifier
	pendingTTL time.Duration
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, notifier notification.Notifier, pendingTTL time.Duration,
	m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		notifier:   notifier,
		pendingTTL: pendingTTL,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// Run переводит в expired объявления и покупки с истёкшим сроком, а ожидающие покупки
// старше pendingTTL считает брошенными. Ошибка одного шага не отменяет остальные.
func (s *Service) Run(ctx context.Context) (Report, error) {
	const op = "sweeper.Run"
	log := s.log.With(slog.String("op", op))
	now := s.now()

	var (
		report   Report
		firstErr error
	)
	fail := func(step string, err error) {
		log.Error("sweep step failed", slog.String("step", step), sl.Err(err))
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %s: %w", op, step, err)
		}
	}

	expired, err := s.repo.ExpireListings(ctx, now)
	if err != nil {
		fail("listings", err)
	}
	report.Listings = len(expired)
	for _, l := range expired {
		if err := s.notifier.Notify(ctx, rabbitmq.RoutingSlotExpired, notification.Expired(l)); err != nil {
			log.Warn("failed to send expiry notification", slog.String("listing_id", l.ID), sl.Err(err))
		}
	}

	if report.Purchases, err = s.repo.ExpirePurchases(ctx, now); err != nil {
		fail("purchases", err)
	}

	if s.pendingTTL > 0 {
		if report.Abandoned, err = s.repo.ExpireAbandonedCheckouts(ctx, now.Add(-s.pendingTTL)); err != nil {
			fail("abandoned_checkouts", err)
		}
	}

	s.metrics.Swept("listings", report.Listings)
	s.metrics.Swept("purchases", int(report.Purchases))
	s.metrics.Swept("abandoned_checkouts", report.Abandoned)
	log.Info("sweep finished",
		slog.Int("listings", report.Listings),
		slog.Int64("purchases", report.Purchases),
		slog.Int("abandoned_checkouts", report.Abandoned),
	)
	return report, firstErr
}
