package repository

import (
	"context"
	"fmt"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// InsertNotification сохраняет уведомление. Повтор с тем же dedup_key игнорируется: inserted=false.
func (s *Storage) InsertNotification(ctx context.Context, n models.Notification) (bool, error) {
	const op = "storage.InsertNotification"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	kind := n.Kind
	if kind == "" {
		kind = "info"
	}
	query := `INSERT INTO notifications (user_id, title, message, kind, dedup_key)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (dedup_key) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query, n.UserID, n.Title, n.Message, kind, n.DedupKey)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rows == 1, nil
}

// ListNotifications возвращает уведомления пользователя, новые первыми.
func (s *Storage) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	const op = "storage.ListNotifications"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, title, message, kind, is_read, dedup_key, created_at
			  FROM notifications
			  WHERE user_id = $1
			  ORDER BY created_at DESC, id
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	res := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Kind, &n.IsRead, &n.DedupKey, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// MarkNotificationRead отмечает уведомление пользователя прочитанным.
func (s *Storage) MarkNotificationRead(ctx context.Context, id, userID string) error {
	const op = "storage.MarkNotificationRead"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}
