// Package access проверяет, оплачен ли слот пользователем. Клиент опрашивает проверку
// после возврата со страницы оплаты, пока вебхук ещё не обработан.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
	"github.com/junaidookay/mu-online-hub/internal/metrics"
	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Status итог проверки доступа.
type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusNone       Status = "none"
)

// Result ответ проверки доступа.
type Result struct {
	Status     Status     `json:"status"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	PurchaseID string     `json:"purchaseId,omitempty"`
}

// DefaultDelays паузы между попытками опроса.
var DefaultDelays = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second}

// noExpiryTTL время жизни кеша для покупок без срока окончания.
const noExpiryTTL = 24 * time.Hour

// Repository источник покупок.
type Repository interface {
	ActivePurchase(ctx context.Context, userID string, slotID int, now time.Time) (*models.SlotPurchase, error)
}

// Cache кеш положительных ответов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// CacheKey ключ кеша доступа пользователя к слоту.
func CacheKey(userID string, slotID int) string {
	return fmt.Sprintf("access:%s:%d", userID, slotID)
}

// Service проверка доступа к слоту.
type Service struct {
	repo    Repository
	cache   Cache
	log     *slog.Logger
	metrics *metrics.Metrics
	delays  []time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func NewService(repo Repository, cache Cache, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		log:     log,
		metrics: m,
		delays:  DefaultDelays,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// HasActivePurchase сообщает, есть ли у пользователя действующая покупка слота.
// Бесплатный слот доступен всегда.
func (s *Service) HasActivePurchase(ctx context.Context, userID string, slotID int) (Result, error) {
	const op = "access.HasActivePurchase"
	log := s.log.With(slog.String("op", op))

	if _, err := slots.Lookup(slotID); err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if slots.IsFree(slotID) {
		return Result{Status: StatusActive}, nil
	}

	now := s.now()
	key := CacheKey(userID, slotID)
	var cached Result
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("failed to read access cache", slog.String("key", key), sl.Err(err))
	}
	if found && cached.Status == StatusActive && (cached.ExpiresAt == nil || cached.ExpiresAt.After(now)) {
		return cached, nil
	}

	p, err := s.repo.ActivePurchase(ctx, userID, slotID, now)
	if errors.Is(err, models.ErrNotFound) {
		return Result{Status: StatusNone}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	res := Result{Status: StatusActive, ExpiresAt: p.ExpiresAt, PurchaseID: p.ID}
	ttl := noExpiryTTL
	if p.ExpiresAt != nil {
		ttl = p.ExpiresAt.Sub(now)
	}
	if ttl > 0 {
		if err := s.cache.Set(ctx, key, res, ttl); err != nil {
			log.Warn("failed to cache access", slog.String("key", key), sl.Err(err))
		}
	}
	return res, nil
}

// WaitForActivation опрашивает доступ с паузами DefaultDelays. Если оплата так и не
// подтвердилась, возвращается StatusProcessing, а не ошибка.
func (s *Service) WaitForActivation(ctx context.Context, userID string, slotID int) (Result, error) {
	const op = "access.WaitForActivation"

	res, err := s.HasActivePurchase(ctx, userID, slotID)
	if err != nil || res.Status == StatusActive {
		s.metrics.PollAttempts(1)
		return res, err
	}
	for i, d := range s.delays {
		if err := s.sleep(ctx, d); err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		res, err = s.HasActivePurchase(ctx, userID, slotID)
		if err != nil {
			return Result{}, err
		}
		if res.Status == StatusActive {
			s.metrics.PollAttempts(i + 2)
			return res, nil
		}
	}
	s.metrics.PollAttempts(len(s.delays) + 1)
	return Result{Status: StatusProcessing}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
