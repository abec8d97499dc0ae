// Package pricing каталог пакетов размещения и обзор слотов с текущей занятостью.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

const cacheTTL = 5 * time.Minute

// Repository источник пакетов и занятости слотов.
type Repository interface {
	ListPackagesBySlot(ctx context.Context, slotID int) ([]*models.PricingPackage, error)
	GetPackage(ctx context.Context, id string) (*models.PricingPackage, error)
	SlotUsage(ctx context.Context, kind models.Kind, slotID int, now time.Time) (models.SlotUsage, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// SlotOverview слот из реестра с пакетами и занятостью.
type SlotOverview struct {
	slots.Slot
	Usage    models.SlotUsage         `json:"usage"`
	Full     bool                     `json:"full"`
	Packages []*models.PricingPackage `json:"packages"`
}

// Service каталог цен.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
	now   func() time.Time
}

func NewService(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, log: log, now: time.Now}
}

func cacheKey(slotID int) string {
	return fmt.Sprintf("pricing:slot:%d", slotID)
}

// ListBySlot активные пакеты слота. Ошибки кеша не мешают чтению из базы.
func (s *Service) ListBySlot(ctx context.Context, slotID int) ([]*models.PricingPackage, error) {
	const op = "pricing.ListBySlot"
	log := s.log.With(slog.String("op", op))

	if _, err := slots.Lookup(slotID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := cacheKey(slotID)
	var cached []*models.PricingPackage
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("failed to read pricing cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return cached, nil
	}

	packages, err := s.repo.ListPackagesBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Set(ctx, key, packages, cacheTTL); err != nil {
		log.Warn("failed to cache pricing", slog.String("key", key), sl.Err(err))
	}
	return packages, nil
}

// Get пакет по id.
func (s *Service) Get(ctx context.Context, id string) (*models.PricingPackage, error) {
	return s.repo.GetPackage(ctx, id)
}

// Overview все слоты реестра с пакетами и текущей занятостью.
func (s *Service) Overview(ctx context.Context) ([]SlotOverview, error) {
	const op = "pricing.Overview"
	now := s.now()
	all := slots.All()
	res := make([]SlotOverview, 0, len(all))
	for _, slot := range all {
		packages, err := s.ListBySlot(ctx, slot.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		usage, err := s.repo.SlotUsage(ctx, slot.Kind, slot.ID, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, SlotOverview{Slot: slot, Usage: usage, Full: usage.Full(), Packages: packages})
	}
	return res, nil
}
