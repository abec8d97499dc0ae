package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// ClaimWebhookEvent регистрирует событие провайдера перед обработкой.
// claimed=false означает, что событие уже успешно обработано и повторная доставка
// должна завершиться без побочных эффектов. Событие, обработка которого ранее упала,
// можно забрать снова.
func (s *Storage) ClaimWebhookEvent(ctx context.Context, provider models.Provider, eventID, eventType string) (bool, error) {
	const op = "storage.ClaimWebhookEvent"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO webhook_events (provider, event_id, event_type)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (provider, event_id) DO UPDATE
			      SET event_type = EXCLUDED.event_type
			      WHERE webhook_events.processed_at IS NULL
			  RETURNING event_id`
	var id string
	err := s.DB.QueryRowContext(ctx, query, string(provider), eventID, eventType).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// FinishWebhookEvent фиксирует результат обработки. Пустой procErr помечает событие обработанным;
// иначе processed_at остаётся пустым и повторная доставка обработает событие заново.
func (s *Storage) FinishWebhookEvent(ctx context.Context, provider models.Provider, eventID, procErr string) error {
	const op = "storage.FinishWebhookEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE webhook_events
			  SET processed_at = CASE WHEN $3::text = '' THEN NOW() ELSE NULL END,
			      processing_error = $3::text
			  WHERE provider = $1 AND event_id = $2`
	if _, err := s.DB.ExecContext(ctx, query, string(provider), eventID, procErr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
