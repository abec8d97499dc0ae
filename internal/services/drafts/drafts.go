// Package drafts бизнес-логика черновиков объявлений во всех пяти таблицах.
package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/junaidookay/mu-online-hub/internal/models"
	"github.com/junaidookay/mu-online-hub/internal/slots"
)

// Repository определяет методы для работы с объявлениями в хранилище.
type Repository interface {
	// CreateListing добавляет черновик и возвращает его id.
	CreateListing(ctx context.Context, kind models.Kind, userID string, fields models.ListingFields) (string, error)
	// UpdateListing обновляет поля объявления владельца.
	UpdateListing(ctx context.Context, kind models.Kind, id, userID string, fields models.ListingFields) error
	// DeleteListing удаляет объявление владельца.
	DeleteListing(ctx context.Context, kind models.Kind, id, userID string) error
	// GetListing возвращает объявление владельца.
	GetListing(ctx context.Context, kind models.Kind, id, userID string) (*models.Listing, error)
	// ListListingsForUser возвращает объявления пользователя из всех таблиц.
	ListListingsForUser(ctx context.Context, userID string) ([]*models.Listing, error)
}

// Service черновики пользователя.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// IsDraft отличает черновик от истёкшего объявления. Объявления бесплатного слота
// черновиками не считаются никогда.
func IsDraft(l *models.Listing, now time.Time) bool {
	if l.SlotID != nil && slots.IsFree(*l.SlotID) {
		return false
	}
	switch l.EffectiveStatus(now) {
	case models.StatusDraft, models.StatusPendingPayment:
		return true
	default:
		return false
	}
}

// ValidID проверяет формат id объявления. Некорректный id равнозначен чужому.
func ValidID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotOwner
	}
	return nil
}

func validateFields(kind models.Kind, fields models.ListingFields) error {
	if !kind.Valid() {
		return models.ErrUnknownKind
	}
	if fields.SlotID != nil {
		if err := slots.Accepts(*fields.SlotID, kind); err != nil {
			return err
		}
	}
	if len(fields.Details) > 0 && !json.Valid(fields.Details) {
		return fmt.Errorf("%w: details must be a JSON object", models.ErrValidation)
	}
	return nil
}

// Create создаёт неактивный черновик.
func (s *Service) Create(ctx context.Context, kind models.Kind, userID string, fields models.ListingFields) (string, error) {
	const op = "drafts.Create"
	if err := validateFields(kind, fields); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := s.repo.CreateListing(ctx, kind, userID, fields)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("draft created", slog.String("op", op), slog.String("kind", string(kind)), slog.String("id", id))
	return id, nil
}

// Update меняет поля черновика или опубликованного объявления владельца.
func (s *Service) Update(ctx context.Context, kind models.Kind, id, userID string, fields models.ListingFields) error {
	const op = "drafts.Update"
	if err := validateFields(kind, fields); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := ValidID(id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateListing(ctx, kind, id, userID, fields); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет объявление владельца.
func (s *Service) Delete(ctx context.Context, kind models.Kind, id, userID string) error {
	const op = "drafts.Delete"
	if !kind.Valid() {
		return fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}
	if err := ValidID(id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeleteListing(ctx, kind, id, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get объявление владельца с вычисленным статусом.
func (s *Service) Get(ctx context.Context, kind models.Kind, id, userID string) (*models.DraftSummary, error) {
	const op = "drafts.Get"
	if !kind.Valid() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}
	if err := ValidID(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	l, err := s.repo.GetListing(ctx, kind, id, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return summarize(l, s.now()), nil
}

// ListForUser объявления пользователя из всех таблиц, новые первыми.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.DraftSummary, error) {
	const op = "drafts.ListForUser"
	listings, err := s.repo.ListListingsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	res := make([]models.DraftSummary, 0, len(listings))
	for _, l := range listings {
		res = append(res, *summarize(l, now))
	}
	return res, nil
}

func summarize(l *models.Listing, now time.Time) *models.DraftSummary {
	out := models.DraftSummary{Listing: *l, IsDraft: IsDraft(l, now)}
	out.Status = l.EffectiveStatus(now)
	return &out
}
