// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/zar/internal/database"
	"github.com/example/zar/internal/models"
)

var dbSeq atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to the test.
// A single connection serialises access the way row locks would.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:zar_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateProduct inserts an active product.
func CreateProduct(t testing.TB, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()

	product := models.Product{
		Name:     name,
		Category: "general",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		ImageURL: "/uploads/" + name + ".jpg",
		IsActive: true,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

// CreateDeliveryRefs inserts one active zone and one active slot.
func CreateDeliveryRefs(t testing.TB, db *gorm.DB) (models.DeliveryZone, models.DeliverySlot) {
	t.Helper()

	zone := models.DeliveryZone{
		Name:          fmt.Sprintf("Zone %d", dbSeq.Add(1)),
		Fee:           decimal.RequireFromString("10.00"),
		EstimatedTime: "30-45 min",
		IsActive:      true,
	}
	require.NoError(t, db.Create(&zone).Error)

	slot := models.DeliverySlot{
		Label:     fmt.Sprintf("Slot %d", dbSeq.Add(1)),
		StartTime: "09:00",
		EndTime:   "12:00",
		SortOrder: 1,
		IsActive:  true,
	}
	require.NoError(t, db.Create(&slot).Error)
	return zone, slot
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, db *gorm.DB, productID uint) int {
	t.Helper()

	var product models.Product
	require.NoError(t, db.Select("stock").Where("id = ?", productID).Take(&product).Error)
	return product.Stock
}
