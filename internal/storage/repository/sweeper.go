package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// ExpireListings снимает объявления с истёкшим сроком во всех пяти таблицах.
func (s *Storage) ExpireListings(ctx context.Context, now time.Time) ([]models.ExpiredListing, error) {
	const op = "storage.ExpireListings"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var res []models.ExpiredListing
	for _, kind := range models.Kinds() {
		query := fmt.Sprintf(`UPDATE %s
				  SET is_active = FALSE, status = 'expired', updated_at = NOW()
				  WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
				  RETURNING id, user_id, slot_id, expires_at`, kind.Table())
		rows, err := s.DB.QueryContext(ctx, query, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		for rows.Next() {
			var (
				e      models.ExpiredListing
				slotID sql.NullInt64
			)
			if err := rows.Scan(&e.ID, &e.UserID, &slotID, &e.ExpiresAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			e.Kind = kind
			e.SlotID = intPtr(slotID)
			res = append(res, e)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rows.Close()
	}
	return res, nil
}

// ExpirePurchases закрывает покупки с истёкшим сроком.
func (s *Storage) ExpirePurchases(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.ExpirePurchases"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx, `UPDATE slot_purchases SET status = 'expired', is_active = FALSE
			  WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ExpireAbandonedCheckouts закрывает ожидающие покупки старше cutoff
// и возвращает их черновики в draft.
func (s *Storage) ExpireAbandonedCheckouts(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "storage.ExpireAbandonedCheckouts"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	rows, err := tx.QueryContext(ctx, `UPDATE slot_purchases SET status = 'expired'
			  WHERE status = 'pending' AND NOT is_active AND created_at < $1
			  RETURNING user_id, draft_id, draft_type`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	type stale struct {
		userID    string
		draftID   sql.NullString
		draftType sql.NullString
	}
	var closed []stale
	for rows.Next() {
		var st stale
		if err := rows.Scan(&st.userID, &st.draftID, &st.draftType); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		closed = append(closed, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rows.Close()

	for _, st := range closed {
		if err := revertDraft(ctx, tx, st.userID, st.draftID, st.draftType); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return len(closed), nil
}
