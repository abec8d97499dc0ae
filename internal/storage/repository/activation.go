package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/junaidookay/mu-online-hub/internal/models"
)

// ActivateDraft атомарно активирует черновик и покупку.
//
// Порядок блокировок: строка слота, покупка, черновик. Блокировка слота сериализует
// все активации одного слота, поэтому проверка вместимости и запись идут без гонки.
// Покупка, уже активированная этой же транзакцией провайдера, возвращается
// вместе с models.ErrAlreadyActive и прежним expires_at.
func (s *Storage) ActivateDraft(ctx context.Context, a models.Activation) (models.ActivationResult, error) {
	const op = "storage.ActivateDraft"
	select {
	case <-ctx.Done():
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if a.Now.IsZero() {
		a.Now = time.Now()
	}
	a.Now = a.Now.UTC().Truncate(time.Microsecond)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	maxConcurrent, err := lockSlot(ctx, tx, a.SlotID)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	purchase, err := matchPurchase(ctx, tx, a)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if purchase != nil && purchase.IsActive {
		res := resultFromPurchase(purchase)
		return res, fmt.Errorf("%s: %w", op, models.ErrAlreadyActive)
	}

	if a.RequireKnownRef {
		if purchase == nil || purchase.Status != models.PurchasePending || purchase.PackageID == nil {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, models.ErrPaymentNotConfirmed)
		}
		a.PackageID = *purchase.PackageID
		a.DurationDays = 0
	}

	if purchase != nil {
		if a.DraftID == "" && purchase.DraftID != nil {
			a.DraftID = *purchase.DraftID
		}
		if a.Kind == "" && purchase.DraftType != nil {
			a.Kind = *purchase.DraftType
		}
		if a.PackageID == "" && purchase.PackageID != nil {
			a.PackageID = *purchase.PackageID
		}
	}

	duration, err := durationDays(ctx, tx, a)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := a.Now.Add(time.Duration(duration) * 24 * time.Hour).UTC()

	if a.DraftID != "" {
		if !a.Kind.Valid() {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
		}
		if err := lockDraft(ctx, tx, a.Kind, a.DraftID, a.UserID); err != nil {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if err := checkCapacity(ctx, tx, a.Kind, a.SlotID, a.DraftID, maxConcurrent, a.Now); err != nil {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if err := activateListing(ctx, tx, a.Kind, a.DraftID, a.UserID, a.SlotID, &expiresAt); err != nil {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	purchaseID, err := completePurchase(ctx, tx, purchase, a, expiresAt)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.ActivationResult{
		PurchaseID:   purchaseID,
		DraftID:      a.DraftID,
		Kind:         a.Kind,
		UserID:       a.UserID,
		SlotID:       a.SlotID,
		ExpiresAt:    &expiresAt,
		Transitioned: true,
	}, nil
}

// PublishDraft публикует черновик без платежа в момент публикации.
// Бесплатный слот активирует объявление без срока. Платный слот требует действующей
// покупки без привязанного черновика: объявление получает её срок.
func (s *Storage) PublishDraft(ctx context.Context, p models.Publication) (models.ActivationResult, error) {
	const op = "storage.PublishDraft"
	select {
	case <-ctx.Done():
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if !p.Kind.Valid() {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, models.ErrUnknownKind)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	maxConcurrent, err := lockSlot(ctx, tx, p.SlotID)
	if err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := lockDraft(ctx, tx, p.Kind, p.DraftID, p.UserID); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res := models.ActivationResult{DraftID: p.DraftID, Kind: p.Kind, UserID: p.UserID, SlotID: p.SlotID}
	var purchaseID string
	if !p.Free {
		purchase, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+`
				  FROM slot_purchases
				  WHERE user_id = $1 AND slot_id = $2 AND is_active AND draft_id IS NULL
				    AND (expires_at IS NULL OR expires_at > $3)
				  ORDER BY created_at DESC
				  LIMIT 1
				  FOR UPDATE`, p.UserID, p.SlotID, p.Now))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, models.ErrNoActivePurchase)
		}
		if err != nil {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
		}
		purchaseID = purchase.ID
		res.PurchaseID = purchase.ID
		res.ExpiresAt = purchase.ExpiresAt
	}

	if err := checkCapacity(ctx, tx, p.Kind, p.SlotID, p.DraftID, maxConcurrent, p.Now); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := activateListing(ctx, tx, p.Kind, p.DraftID, p.UserID, p.SlotID, res.ExpiresAt); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if purchaseID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE slot_purchases SET draft_id = $2, draft_type = $3 WHERE id = $1`,
			purchaseID, p.DraftID, string(p.Kind)); err != nil {
			return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.ActivationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	res.Transitioned = true
	return res, nil
}

// SlotUsage считает живые объявления слота и ближайшее освобождение места.
func (s *Storage) SlotUsage(ctx context.Context, kind models.Kind, slotID int, now time.Time) (models.SlotUsage, error) {
	const op = "storage.SlotUsage"
	select {
	case <-ctx.Done():
		return models.SlotUsage{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	usage := models.SlotUsage{SlotID: slotID}
	var maxConcurrent sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `SELECT max_concurrent FROM slots WHERE id = $1`, slotID).Scan(&maxConcurrent)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SlotUsage{}, fmt.Errorf("%s: %w", op, models.ErrUnknownSlot)
	}
	if err != nil {
		return models.SlotUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	usage.MaxConcurrent = intPtr(maxConcurrent)

	usage.Live, err = countLive(ctx, s.DB, kind, slotID, "", now)
	if err != nil {
		return models.SlotUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	usage.NextAvailableAt, err = nextAvailableAt(ctx, s.DB, slotID, now)
	if err != nil {
		return models.SlotUsage{}, fmt.Errorf("%s: %w", op, err)
	}
	return usage, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lockSlot(ctx context.Context, tx *sql.Tx, slotID int) (*int, error) {
	var maxConcurrent sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT max_concurrent FROM slots WHERE id = $1 FOR UPDATE`, slotID).Scan(&maxConcurrent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownSlot
	}
	if err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	return intPtr(maxConcurrent), nil
}

// matchPurchase находит покупку: сначала по transaction_ref, затем последнюю
// ожидающую по (user_id, slot_id). На прямом пути с известным transaction_ref
// запасной поиск не выполняется: новая запись с этим ref делает повторный вызов идемпотентным.
// Без подтверждения провайдера (RequireKnownRef) подходит только запись с этим ref.
func matchPurchase(ctx context.Context, tx *sql.Tx, a models.Activation) (*models.SlotPurchase, error) {
	if a.RequireKnownRef && a.TransactionRef == "" {
		return nil, models.ErrPaymentNotConfirmed
	}
	if a.TransactionRef != "" {
		p, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+`
				  FROM slot_purchases WHERE transaction_ref = $1 FOR UPDATE`, a.TransactionRef))
		if err == nil {
			if p.UserID != a.UserID || p.SlotID != a.SlotID {
				return nil, models.ErrNotOwner
			}
			return p, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("match purchase by ref: %w", err)
		}
		if a.RequireKnownRef {
			return nil, models.ErrPaymentNotConfirmed
		}
		if !a.RequirePending {
			return nil, nil
		}
	}

	p, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+`
			  FROM slot_purchases
			  WHERE user_id = $1 AND slot_id = $2 AND NOT is_active AND status = 'pending'
			  ORDER BY created_at DESC
			  LIMIT 1
			  FOR UPDATE`, a.UserID, a.SlotID))
	if errors.Is(err, sql.ErrNoRows) {
		if a.RequirePending {
			return nil, models.ErrNoPendingPurchase
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match pending purchase: %w", err)
	}
	return p, nil
}

// durationDays берёт длительность из пакета, а при его отсутствии из метаданных платежа.
func durationDays(ctx context.Context, tx *sql.Tx, a models.Activation) (int, error) {
	if a.PackageID != "" {
		var days int
		err := tx.QueryRowContext(ctx, `SELECT duration_days FROM pricing_packages WHERE id = $1`, a.PackageID).Scan(&days)
		if err == nil && days > 0 {
			return days, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("package duration: %w", err)
		}
	}
	if a.DurationDays <= 0 {
		return 0, fmt.Errorf("%w: duration_days is required", models.ErrValidation)
	}
	return a.DurationDays, nil
}

func lockDraft(ctx context.Context, tx *sql.Tx, kind models.Kind, draftID, userID string) error {
	var id string
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 AND user_id = $2 FOR UPDATE`, kind.Table())
	err := tx.QueryRowContext(ctx, query, draftID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotOwner
	}
	if err != nil {
		return fmt.Errorf("lock draft: %w", err)
	}
	return nil
}

func countLive(ctx context.Context, q querier, kind models.Kind, slotID int, excludeID string, now time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
			  WHERE slot_id = $1 AND is_active
			    AND (expires_at IS NULL OR expires_at > $2)
			    AND ($3::text = '' OR id::text <> $3::text)`, kind.Table())
	var n int
	if err := q.QueryRowContext(ctx, query, slotID, now, excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count live listings: %w", err)
	}
	return n, nil
}

// nextAvailableAt ближайший срок окончания среди действующих покупок слота; nil если сроков нет.
func nextAvailableAt(ctx context.Context, q querier, slotID int, now time.Time) (*time.Time, error) {
	var next sql.NullTime
	err := q.QueryRowContext(ctx, `SELECT MIN(expires_at) FROM slot_purchases
			  WHERE slot_id = $1 AND is_active AND expires_at IS NOT NULL AND expires_at > $2`, slotID, now).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next available at: %w", err)
	}
	return timePtr(next), nil
}

func checkCapacity(ctx context.Context, tx *sql.Tx, kind models.Kind, slotID int, draftID string, maxConcurrent *int, now time.Time) error {
	if maxConcurrent == nil {
		return nil
	}
	live, err := countLive(ctx, tx, kind, slotID, draftID, now)
	if err != nil {
		return err
	}
	if live < *maxConcurrent {
		return nil
	}
	next, err := nextAvailableAt(ctx, tx, slotID, now)
	if err != nil {
		return err
	}
	return &models.CapacityExceededError{SlotID: slotID, MaxConcurrent: *maxConcurrent, NextAvailableAt: next}
}

func activateListing(ctx context.Context, tx *sql.Tx, kind models.Kind, draftID, userID string, slotID int, expiresAt *time.Time) error {
	query := fmt.Sprintf(`UPDATE %s
			  SET is_active = TRUE, status = 'active', slot_id = $3, expires_at = $4, updated_at = NOW()
			  WHERE id = $1 AND user_id = $2`, kind.Table())
	if _, err := tx.ExecContext(ctx, query, draftID, userID, slotID, nullTime(expiresAt)); err != nil {
		return fmt.Errorf("activate listing: %w", err)
	}
	return nil
}

// completePurchase переводит найденную покупку в active или создаёт новую запись для прямого пути.
func completePurchase(ctx context.Context, tx *sql.Tx, p *models.SlotPurchase, a models.Activation, expiresAt time.Time) (string, error) {
	draftType := sql.NullString{}
	if a.Kind != "" {
		draftType = nullString(string(a.Kind))
	}
	if p != nil {
		_, err := tx.ExecContext(ctx, `UPDATE slot_purchases
				  SET status = 'active', is_active = TRUE, completed_at = $2, expires_at = $3,
				      transaction_ref = COALESCE(transaction_ref, $4),
				      draft_id = COALESCE($5, draft_id),
				      draft_type = COALESCE($6, draft_type),
				      package_id = COALESCE(package_id, $7)
				  WHERE id = $1`,
			p.ID, a.Now, expiresAt, nullString(a.TransactionRef), nullString(a.DraftID), draftType, nullString(a.PackageID))
		if err != nil {
			return "", fmt.Errorf("complete purchase: %w", err)
		}
		return p.ID, nil
	}

	provider := a.Provider
	if provider == "" {
		provider = models.ProviderStripe
	}
	var id string
	err := tx.QueryRowContext(ctx, `INSERT INTO slot_purchases
			  (user_id, slot_id, package_id, draft_id, draft_type, provider, transaction_ref,
			   status, is_active, completed_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', TRUE, $8, $9)
			  RETURNING id`,
		a.UserID, a.SlotID, nullString(a.PackageID), nullString(a.DraftID), draftType, string(provider),
		nullString(a.TransactionRef), a.Now, expiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert purchase: %w", err)
	}
	return id, nil
}

func resultFromPurchase(p *models.SlotPurchase) models.ActivationResult {
	res := models.ActivationResult{
		PurchaseID: p.ID,
		UserID:     p.UserID,
		SlotID:     p.SlotID,
		ExpiresAt:  p.ExpiresAt,
	}
	if p.DraftID != nil {
		res.DraftID = *p.DraftID
	}
	if p.DraftType != nil {
		res.Kind = *p.DraftType
	}
	return res
}
