package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

const purchaseColumns = `id, user_id, slot_id, package_id, draft_id, draft_type, provider, transaction_ref,
	status, is_active, completed_at, expires_at, created_at`

func scanPurchase(row rowScanner) (*models.SlotPurchase, error) {
	var (
		p           models.SlotPurchase
		packageID   sql.NullString
		draftID     sql.NullString
		draftType   sql.NullString
		provider    string
		ref         sql.NullString
		status      string
		completedAt sql.NullTime
		expiresAt   sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.SlotID, &packageID, &draftID, &draftType, &provider, &ref,
		&status, &p.IsActive, &completedAt, &expiresAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PackageID = stringPtr(packageID)
	p.DraftID = stringPtr(draftID)
	if draftType.Valid {
		k := models.Kind(draftType.String)
		p.DraftType = &k
	}
	p.Provider = models.Provider(provider)
	p.TransactionRef = stringPtr(ref)
	p.Status = models.PurchaseStatus(status)
	p.CompletedAt = timePtr(completedAt)
	p.ExpiresAt = timePtr(expiresAt)
	return &p, nil
}

// CreatePendingPurchase записывает ожидающую покупку. Вызывается только после того,
// как провайдер вернул сессию, поэтому transaction_ref известен сразу.
func (s *Storage) CreatePendingPurchase(ctx context.Context, p models.SlotPurchase) (string, error) {
	const op = "storage.CreatePendingPurchase"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var draftType sql.NullString
	if p.DraftType != nil {
		draftType = nullString(string(*p.DraftType))
	}
	query := `INSERT INTO slot_purchases (user_id, slot_id, package_id, draft_id, draft_type, provider, transaction_ref, status, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', FALSE)
			  RETURNING id`
	var id string
	err := s.DB.QueryRowContext(ctx, query, p.UserID, p.SlotID, deref(p.PackageID), deref(p.DraftID), draftType,
		string(p.Provider), deref(p.TransactionRef)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func deref(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}

// GetPurchaseByRef ищет покупку по идентификатору транзакции провайдера.
func (s *Storage) GetPurchaseByRef(ctx context.Context, ref string) (*models.SlotPurchase, error) {
	const op = "storage.GetPurchaseByRef"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + purchaseColumns + ` FROM slot_purchases WHERE transaction_ref = $1`
	p, err := scanPurchase(s.DB.QueryRowContext(ctx, query, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPurchase ищет покупку по id.
func (s *Storage) GetPurchase(ctx context.Context, id string) (*models.SlotPurchase, error) {
	const op = "storage.GetPurchase"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + purchaseColumns + ` FROM slot_purchases WHERE id = $1`
	p, err := scanPurchase(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ActivePurchase возвращает действующую покупку слота пользователем с самым поздним сроком.
func (s *Storage) ActivePurchase(ctx context.Context, userID string, slotID int, now time.Time) (*models.SlotPurchase, error) {
	const op = "storage.ActivePurchase"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + purchaseColumns + `
			  FROM slot_purchases
			  WHERE user_id = $1 AND slot_id = $2 AND is_active
			    AND (expires_at IS NULL OR expires_at > $3)
			  ORDER BY expires_at DESC NULLS FIRST
			  LIMIT 1`
	p, err := scanPurchase(s.DB.QueryRowContext(ctx, query, userID, slotID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ClosePendingPurchase переводит ожидающую покупку в status (failed или expired)
// и возвращает её черновик в draft. Уже закрытая или активная покупка не меняется: changed=false.
func (s *Storage) ClosePendingPurchase(ctx context.Context, ref string, status models.PurchaseStatus) (bool, error) {
	const op = "storage.ClosePendingPurchase"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	var (
		userID    string
		draftID   sql.NullString
		draftType sql.NullString
	)
	err = tx.QueryRowContext(ctx, `UPDATE slot_purchases SET status = $2
			  WHERE transaction_ref = $1 AND status = 'pending' AND NOT is_active
			  RETURNING user_id, draft_id, draft_type`, ref, string(status)).Scan(&userID, &draftID, &draftType)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := revertDraft(ctx, tx, userID, draftID, draftType); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// revertDraft возвращает черновик из pending_payment в draft, если по нему
// не осталось других ожидающих покупок.
func revertDraft(ctx context.Context, tx *sql.Tx, userID string, draftID, draftType sql.NullString) error {
	if !draftID.Valid || !draftType.Valid {
		return nil
	}
	kind, err := models.ParseKind(draftType.String)
	if err != nil {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'draft', updated_at = NOW()
			  WHERE id = $1 AND user_id = $2 AND status = 'pending_payment' AND NOT is_active
			    AND NOT EXISTS (SELECT 1 FROM slot_purchases
			                    WHERE draft_id = $1 AND status = 'pending')`, kind.Table())
	_, err = tx.ExecContext(ctx, query, draftID.String, userID)
	return err
}
