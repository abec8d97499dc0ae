package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

const packageColumns = `id, slot_id, name, price_cents, currency, duration_days, is_active, display_order`

func scanPackage(row rowScanner) (*models.PricingPackage, error) {
	var p models.PricingPackage
	if err := row.Scan(&p.ID, &p.SlotID, &p.Name, &p.PriceCents, &p.Currency,
		&p.DurationDays, &p.IsActive, &p.DisplayOrder); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPackagesBySlot возвращает видимые пакеты слота в порядке показа.
func (s *Storage) ListPackagesBySlot(ctx context.Context, slotID int) ([]*models.PricingPackage, error) {
	const op = "storage.ListPackagesBySlot"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + packageColumns + `
			  FROM pricing_packages
			  WHERE slot_id = $1 AND is_active
			  ORDER BY display_order, price_cents`
	rows, err := s.DB.QueryContext(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	res := make([]*models.PricingPackage, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// GetPackage возвращает пакет по id, включая скрытые из каталога.
func (s *Storage) GetPackage(ctx context.Context, id string) (*models.PricingPackage, error) {
	const op = "storage.GetPackage"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + packageColumns + ` FROM pricing_packages WHERE id = $1`
	p, err := scanPackage(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrPackageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
