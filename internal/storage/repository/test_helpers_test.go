package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/junaidookay/mu-online-hub/internal/migrations"
	"github.com/junaidookay/mu-online-hub/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции проекта.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
				wait.ForListeningPort(nat.Port("5432/tcp")),
			).WithDeadline(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, storage))
	return storage
}

// TestDataFactory создаёт тестовые данные напрямую в базе.
type TestDataFactory struct {
	storage *Storage
}

func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateDraft создаёт черновик через репозиторий.
func (f *TestDataFactory) CreateDraft(t *testing.T, kind models.Kind, userID string, slotID int) string {
	id, err := f.storage.CreateListing(context.Background(), kind, userID, models.ListingFields{
		SlotID: &slotID,
		Title:  "Draft " + userID,
	})
	require.NoError(t, err)
	return id
}

// CreateLiveListing вставляет уже активное объявление в обход активации.
func (f *TestDataFactory) CreateLiveListing(t *testing.T, kind models.Kind, userID string, slotID int, expiresAt *time.Time) string {
	var id string
	err := f.storage.DB.QueryRow(`INSERT INTO `+kind.Table()+` (user_id, slot_id, title, status, is_active, expires_at)
		VALUES ($1, $2, 'live', 'active', TRUE, $3) RETURNING id`, userID, slotID, nullTime(expiresAt)).Scan(&id)
	require.NoError(t, err)
	return id
}

// PackageID возвращает id первого пакета слота из сидов.
func (f *TestDataFactory) PackageID(t *testing.T, slotID int) string {
	var id string
	err := f.storage.DB.QueryRow(`SELECT id FROM pricing_packages WHERE slot_id = $1 ORDER BY display_order LIMIT 1`, slotID).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreatePending создаёт ожидающую покупку с transaction_ref.
func (f *TestDataFactory) CreatePending(t *testing.T, userID string, slotID int, packageID, draftID string, kind models.Kind, ref string) string {
	p := models.SlotPurchase{
		UserID:         userID,
		SlotID:         slotID,
		Provider:       models.ProviderStripe,
		TransactionRef: &ref,
	}
	if packageID != "" {
		p.PackageID = &packageID
	}
	if draftID != "" {
		p.DraftID = &draftID
		p.DraftType = &kind
	}
	id, err := f.storage.CreatePendingPurchase(context.Background(), p)
	require.NoError(t, err)
	return id
}

// TestVerification проверяет состояние базы после операций.
type TestVerification struct {
	storage *Storage
}

func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// PurchaseCount число записей журнала по пользователю и слоту.
func (v *TestVerification) PurchaseCount(t *testing.T, userID string, slotID int) int {
	var n int
	err := v.storage.DB.QueryRow(`SELECT COUNT(*) FROM slot_purchases WHERE user_id = $1 AND slot_id = $2`, userID, slotID).Scan(&n)
	require.NoError(t, err)
	return n
}

// LiveCount число живых объявлений в слоте.
func (v *TestVerification) LiveCount(t *testing.T, kind models.Kind, slotID int) int {
	var n int
	err := v.storage.DB.QueryRow(`SELECT COUNT(*) FROM `+kind.Table()+`
		WHERE slot_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > NOW())`, slotID).Scan(&n)
	require.NoError(t, err)
	return n
}
