package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/pos/internal/domain/catalog"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newMockProductRepository creates a GormProductRepository with a mocked SQL connection
func newMockProductRepository(t *testing.T) (*GormProductRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormProductRepository(gormDB), mock, mockDB
}

func TestGormProductRepository_FindByBarcode(t *testing.T) {
	t.Run("finds product by barcode", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		productID := uuid.New()
		tenantID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "code", "name", "barcode", "unit", "selling_price", "status"}).
			AddRow(productID, tenantID, "SKU001", "Sparkling Water", "4006381333931", "btl", "1.2500", "active")

		mock.ExpectQuery(`SELECT \* FROM "products" WHERE tenant_id = \$1 AND barcode = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(tenantID, "4006381333931", 1).
			WillReturnRows(rows)

		product, err := repo.FindByBarcode(context.Background(), tenantID, "4006381333931")

		require.NoError(t, err)
		assert.Equal(t, productID, product.ID)
		assert.Equal(t, "Sparkling Water", product.Name)
		assert.True(t, decimal.RequireFromString("1.25").Equal(product.SellingPrice))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing rows to not found", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "products" WHERE tenant_id = \$1 AND barcode = \$2`).
			WithArgs(tenantID, "0000", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		product, err := repo.FindByBarcode(context.Background(), tenantID, "0000")

		assert.Nil(t, product)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("returns other database errors unchanged", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		dbErr := errors.New("connection reset")
		mock.ExpectQuery(`SELECT \* FROM "products"`).WillReturnError(dbErr)

		_, err := repo.FindByBarcode(context.Background(), uuid.New(), "123")

		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("rejects empty barcode without querying", func(t *testing.T) {
		repo, mock, mockDB := newMockProductRepository(t)
		defer mockDB.Close()

		_, err := repo.FindByBarcode(context.Background(), uuid.New(), "  ")

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_BARCODE", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormProductRepository_SQLiteRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, (&Database{DB: db}).AutoMigrate())

	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	product, err := catalog.NewProduct(tenantID, "sku-42", "Oat Milk", "carton")
	require.NoError(t, err)
	require.NoError(t, product.SetBarcode("5012345678900"))
	require.NoError(t, product.SetSellingPrice(decimal.RequireFromString("2.49")))
	require.NoError(t, repo.Save(ctx, product))

	found, err := repo.FindByBarcode(ctx, tenantID, "5012345678900")
	require.NoError(t, err)
	assert.Equal(t, product.ID, found.ID)
	assert.Equal(t, "SKU-42", found.Code)
	assert.True(t, found.SellingPrice.Equal(decimal.RequireFromString("2.49")))

	_, err = repo.FindByBarcode(ctx, uuid.New(), "5012345678900")
	assert.ErrorIs(t, err, shared.ErrNotFound, "barcodes are tenant scoped")

	found.Name = "Oat Milk Barista"
	found.UpdatedAt = time.Now()
	require.NoError(t, repo.Save(ctx, found))
	again, err := repo.FindByBarcode(ctx, tenantID, "5012345678900")
	require.NoError(t, err)
	assert.Equal(t, "Oat Milk Barista", again.Name)
}
