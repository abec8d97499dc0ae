package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

const listingColumns = `id, user_id, slot_id, title, description, website_url, image_url,
	details, status, is_active, expires_at, created_at, updated_at`

func detailsParam(d json.RawMessage) string {
	if len(d) == 0 {
		return "{}"
	}
	return string(d)
}

func slotParam(slotID *int) sql.NullInt64 {
	if slotID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*slotID), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner, kind models.Kind) (*models.Listing, error) {
	var (
		l         models.Listing
		slotID    sql.NullInt64
		details   []byte
		status    string
		expiresAt sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.UserID, &slotID, &l.Title, &l.Description, &l.WebsiteURL, &l.ImageURL,
		&details, &status, &l.IsActive, &expiresAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Kind = kind
	l.SlotID = intPtr(slotID)
	l.Details = json.RawMessage(details)
	l.Status = models.Status(status)
	l.ExpiresAt = timePtr(expiresAt)
	return &l, nil
}

// CreateListing создаёт черновик: is_active=false, status=draft.
func (s *Storage) CreateListing(ctx context.Context, kind models.Kind, userID string, fields models.ListingFields) (string, error) {
	const op = "storage.CreateListing"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}

	query := fmt.Sprintf(`INSERT INTO %s (user_id, slot_id, title, description, website_url, image_url, details, status, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, 'draft', FALSE)
			  RETURNING id`, kind.Table())
	var id string
	err := s.DB.QueryRowContext(ctx, query, userID, slotParam(fields.SlotID), fields.Title, fields.Description,
		fields.WebsiteURL, fields.ImageURL, detailsParam(fields.Details)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// UpdateListing обновляет редактируемые поля объявления владельца.
// Слот активного объявления не меняется, статусные поля не трогаются никогда.
func (s *Storage) UpdateListing(ctx context.Context, kind models.Kind, id, userID string, fields models.ListingFields) error {
	const op = "storage.UpdateListing"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if !kind.Valid() {
		return fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}

	query := fmt.Sprintf(`UPDATE %s
			  SET title = $3, description = $4, website_url = $5, image_url = $6, details = $7::jsonb,
			      slot_id = CASE WHEN is_active THEN slot_id ELSE $8 END,
			      updated_at = NOW()
			  WHERE id = $1 AND user_id = $2`, kind.Table())
	result, err := s.DB.ExecContext(ctx, query, id, userID, fields.Title, fields.Description,
		fields.WebsiteURL, fields.ImageURL, detailsParam(fields.Details), slotParam(fields.SlotID))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotOwner)
	}
	return nil
}

// DeleteListing удаляет объявление владельца.
func (s *Storage) DeleteListing(ctx context.Context, kind models.Kind, id, userID string) error {
	const op = "storage.DeleteListing"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if !kind.Valid() {
		return fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, kind.Table())
	result, err := s.DB.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotOwner)
	}
	return nil
}

// GetListing возвращает объявление владельца. Чужое или несуществующее -> models.ErrNotOwner.
func (s *Storage) GetListing(ctx context.Context, kind models.Kind, id, userID string) (*models.Listing, error) {
	const op = "storage.GetListing"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND user_id = $2`, listingColumns, kind.Table())
	l, err := scanListing(s.DB.QueryRowContext(ctx, query, id, userID), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotOwner)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

// ListListingsForUser собирает объявления всех пяти типов, новые первыми.
func (s *Storage) ListListingsForUser(ctx context.Context, userID string) ([]*models.Listing, error) {
	const op = "storage.ListListingsForUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	parts := make([]string, 0, len(models.Kinds()))
	for _, kind := range models.Kinds() {
		parts = append(parts, fmt.Sprintf(`SELECT '%s' AS kind, %s FROM %s WHERE user_id = $1`,
			kind, listingColumns, kind.Table()))
	}
	query := strings.Join(parts, "\nUNION ALL\n") + "\nORDER BY created_at DESC, id"

	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.Listing
	for rows.Next() {
		var kind string
		l, err := scanListing(kindScanner{rows: rows, kind: &kind}, "")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		l.Kind = models.Kind(kind)
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// kindScanner читает дополнительную первую колонку kind из UNION-запроса.
type kindScanner struct {
	rows *sql.Rows
	kind *string
}

func (k kindScanner) Scan(dest ...any) error {
	return k.rows.Scan(append([]any{k.kind}, dest...)...)
}

// MarkListingPending переводит черновик в pending_payment после создания сессии оплаты.
// Активные объявления не трогаются.
func (s *Storage) MarkListingPending(ctx context.Context, kind models.Kind, id, userID string, slotID int) error {
	const op = "storage.MarkListingPending"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if !kind.Valid() {
		return fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}

	query := fmt.Sprintf(`UPDATE %s SET status = 'pending_payment', slot_id = $3, updated_at = NOW()
			  WHERE id = $1 AND user_id = $2 AND NOT is_active`, kind.Table())
	if _, err := s.DB.ExecContext(ctx, query, id, userID, slotID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
