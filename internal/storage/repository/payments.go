package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// InsertPayment добавляет строку в журнал аудита платежей.
func (s *Storage) InsertPayment(ctx context.Context, rec models.PaymentRecord) (int64, error) {
	const op = "storage.InsertPayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var slotID sql.NullInt64
	if rec.SlotID != nil {
		slotID = sql.NullInt64{Int64: int64(*rec.SlotID), Valid: true}
	}
	var raw sql.NullString
	if len(rec.RawPayload) > 0 && json.Valid(rec.RawPayload) {
		raw = sql.NullString{String: string(rec.RawPayload), Valid: true}
	}
	productType := rec.ProductType
	if productType == "" {
		productType = models.ProductTypeUnknown
	}

	query := `INSERT INTO payments (provider, provider_event_id, event_type, transaction_ref, user_id, slot_id,
			      product_type, gross_cents, currency, platform_fee_cents, seller_earnings_cents, status, raw_payload)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query, string(rec.Provider), rec.ProviderEventID, rec.EventType,
		rec.TransactionRef, deref(rec.UserID), slotID, productType, rec.GrossCents, rec.Currency,
		rec.PlatformFeeCents, rec.SellerEarningsCents, string(rec.Status), raw).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListPaymentsByRef возвращает записи аудита по транзакции, старые первыми.
func (s *Storage) ListPaymentsByRef(ctx context.Context, ref string) ([]*models.PaymentRecord, error) {
	const op = "storage.ListPaymentsByRef"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, provider, provider_event_id, event_type, transaction_ref, user_id, slot_id, product_type,
			      gross_cents, currency, platform_fee_cents, seller_earnings_cents, status, created_at
			  FROM payments WHERE transaction_ref = $1 ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.PaymentRecord
	for rows.Next() {
		var (
			r        models.PaymentRecord
			provider string
			userID   sql.NullString
			slotID   sql.NullInt64
			status   string
		)
		if err := rows.Scan(&r.ID, &provider, &r.ProviderEventID, &r.EventType, &r.TransactionRef, &userID, &slotID,
			&r.ProductType, &r.GrossCents, &r.Currency, &r.PlatformFeeCents, &r.SellerEarningsCents,
			&status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.Provider = models.Provider(provider)
		r.UserID = stringPtr(userID)
		r.SlotID = intPtr(slotID)
		r.Status = models.PaymentStatus(status)
		res = append(res, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
