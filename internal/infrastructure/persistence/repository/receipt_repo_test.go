package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
	"github.com/garyjia/receipt-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receipt-ledger/pkg/database"
)

func newTestRepo(t *testing.T) *ReceiptRepository {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "receipts.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Migrate(context.Background()))

	repo := NewReceiptRepository(sqlite.NewDB(db.DB, logger), logger)
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return repo
}

func newReceipt(vendor string) *entity.SavedReceipt {
	return &entity.SavedReceipt{
		ReceiptRecord: entity.ReceiptRecord{
			VendorName: vendor,
			Date:       "2024-01-05",
			Total:      "230.50",
			LineItems: []entity.LineItem{
				{ID: "item-0", Description: "Widget", Quantity: 2, UnitPrice: 100, Amount: 200},
			},
		},
		FileKey: "receipts/" + vendor + ".png",
		FileURL: "/files/receipts/" + vendor + ".png",
	}
}

func TestReceiptRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	receipt := newReceipt("ACME Co")
	require.NoError(t, repo.Save(ctx, receipt))

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, entity.ReceiptStatusPending, receipt.Status)
	assert.False(t, receipt.CreatedAt.IsZero())
	assert.Equal(t, receipt.CreatedAt, receipt.UpdatedAt)

	got, err := repo.GetByID(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.ReceiptRecord, got.ReceiptRecord)
	assert.Equal(t, receipt.FileKey, got.FileKey)
	assert.Equal(t, receipt.Status, got.Status)
	assert.True(t, receipt.CreatedAt.Equal(got.CreatedAt))
}

func TestReceiptRepository_SaveRequiresFields(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name   string
		mutate func(r *entity.SavedReceipt)
	}{
		{"vendor", func(r *entity.SavedReceipt) { r.VendorName = " " }},
		{"date", func(r *entity.SavedReceipt) { r.Date = "" }},
		{"file key", func(r *entity.SavedReceipt) { r.FileKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt := newReceipt("ACME")
			tt.mutate(receipt)
			assert.Error(t, repo.Save(context.Background(), receipt))
		})
	}
}

func TestReceiptRepository_SaveFailureLeavesReceiptUntouched(t *testing.T) {
	logger := zap.NewNop()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "receipts.db")}, logger)
	require.NoError(t, err)
	require.NoError(t, database.NewMigrator(db, logger).Migrate(context.Background()))
	repo := NewReceiptRepository(sqlite.NewDB(db.DB, logger), logger)
	require.NoError(t, db.Close())

	receipt := newReceipt("ACME")
	receipt.LineItems = nil

	require.Error(t, repo.Save(context.Background(), receipt))
	assert.Empty(t, receipt.ID)
	assert.Empty(t, receipt.Status)
	assert.Nil(t, receipt.LineItems)
	assert.True(t, receipt.CreatedAt.IsZero())
	assert.True(t, receipt.UpdatedAt.IsZero())
}

func TestReceiptRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, port.ErrNotFound))
}

func TestReceiptRepository_ListFiltersAndPages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, newReceipt(fmt.Sprintf("Jarir %d", i))))
	}
	submitted := newReceipt("Panda Retail")
	submitted.Status = entity.ReceiptStatusSubmitted
	require.NoError(t, repo.Save(ctx, submitted))
	require.NoError(t, repo.Save(ctx, newReceipt("100%_Coffee")))

	all, total, err := repo.List(ctx, port.ReceiptFilter{})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, all, 7)
	assert.Equal(t, "100%_Coffee", all[0].VendorName)

	jarir, total, err := repo.List(ctx, port.ReceiptFilter{Vendor: "JARIR", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, jarir, 2)
	assert.Equal(t, "Jarir 2", jarir[0].VendorName)
	assert.Equal(t, "Jarir 1", jarir[1].VendorName)

	byStatus, total, err := repo.List(ctx, port.ReceiptFilter{Status: "submitted"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, submitted.ID, byStatus[0].ID)

	literal, total, err := repo.List(ctx, port.ReceiptFilter{Vendor: "%_"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "100%_Coffee", literal[0].VendorName)

	empty, total, err := repo.List(ctx, port.ReceiptFilter{Page: 10})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Empty(t, empty)
}

func TestReceiptRepository_UpdatePartial(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	receipt := newReceipt("ACME Co")
	require.NoError(t, repo.Save(ctx, receipt))

	total := "250.00"
	status := entity.ReceiptStatusSubmitted
	items := []entity.LineItem{}
	updated, err := repo.Update(ctx, receipt.ID, entity.ReceiptUpdate{
		Total:     &total,
		Status:    &status,
		LineItems: &items,
	})
	require.NoError(t, err)

	assert.Equal(t, "ACME Co", updated.VendorName)
	assert.Equal(t, "250.00", updated.Total)
	assert.Equal(t, entity.ReceiptStatusSubmitted, updated.Status)
	assert.Empty(t, updated.LineItems)
	assert.True(t, updated.UpdatedAt.After(receipt.UpdatedAt))

	got, err := repo.GetByID(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.00", got.Total)
	assert.Equal(t, "2024-01-05", got.Date)

	_, err = repo.Update(ctx, "missing", entity.ReceiptUpdate{Total: &total})
	assert.True(t, errors.Is(err, port.ErrNotFound))
}

func TestReceiptRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	receipt := newReceipt("ACME Co")
	require.NoError(t, repo.Save(ctx, receipt))

	require.NoError(t, repo.Delete(ctx, receipt.ID))
	_, err := repo.GetByID(ctx, receipt.ID)
	assert.True(t, errors.Is(err, port.ErrNotFound))

	assert.True(t, errors.Is(repo.Delete(ctx, receipt.ID), port.ErrNotFound))
}
