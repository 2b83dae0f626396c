package handlers

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/services"
	"github.com/example/zar/internal/testutil"
	"github.com/example/zar/internal/utils"
)

func TestAdminHandler_DashboardStats(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2025, 12, 2, 15, 0, 0, 0, time.UTC)
	clock := utils.NewFakeClock(now)

	tea := testutil.CreateProduct(t, db, "green-tea", "12.50", 100)
	testutil.CreateProduct(t, db, "honey", "8.75", 3)
	testutil.CreateProduct(t, db, "saffron", "40.00", 0)
	zone, slot := testutil.CreateDeliveryRefs(t, db)

	seq := 0
	placeOrder := func(status models.OrderStatus, total string, at time.Time) {
		seq++
		order := models.Order{
			BaseModel:       models.BaseModel{CreatedAt: at, UpdatedAt: at},
			TrackingCode:    "ZAR-20251202-" + string(rune('A'+seq)) + "AAAAA",
			CustomerName:    "Customer",
			CustomerPhone:   "+998900000000",
			CustomerAddress: "Somewhere 1",
			DeliveryZoneID:  zone.ID,
			DeliverySlotID:  slot.ID,
			Total:           decimal.RequireFromString(total),
			Status:          status,
			Items:           []models.OrderItem{{ProductID: tea.ID, Quantity: 1, Price: tea.Price}},
		}
		require.NoError(t, db.Create(&order).Error)
	}

	yesterday := now.Add(-24 * time.Hour)
	placeOrder(models.OrderStatusDelivered, "100.00", yesterday)
	placeOrder(models.OrderStatusCancelled, "999.00", yesterday)
	placeOrder(models.OrderStatusPending, "22.50", now.Add(-2*time.Hour))
	placeOrder(models.OrderStatusConfirmed, "30.00", now.Add(-time.Hour))
	placeOrder(models.OrderStatusCancelled, "45.00", now.Add(-30*time.Minute))

	h := NewAdminHandler(db, services.NewOrderLedger(db), clock)
	app := newTestApp()
	app.Get("/admin/dashboard", h.DashboardStats)

	status, body := request(t, app, fiber.MethodGet, "/admin/dashboard", nil, "")
	require.Equal(t, fiber.StatusOK, status, body.Error)

	var stats struct {
		TotalOrders    int64                        `json:"total_orders"`
		OrdersByStatus map[models.OrderStatus]int64 `json:"orders_by_status"`
		TotalRevenue   decimal.Decimal              `json:"total_revenue"`
		TodayRevenue   decimal.Decimal              `json:"today_revenue"`
		TotalProducts  int64                        `json:"total_products"`
		LowStock       []models.Product             `json:"low_stock_products"`
		RecentOrders   []models.Order               `json:"recent_orders"`
	}
	decodeData(t, body, &stats)

	assert.EqualValues(t, 5, stats.TotalOrders)
	assert.EqualValues(t, 2, stats.OrdersByStatus[models.OrderStatusCancelled])
	assert.EqualValues(t, 1, stats.OrdersByStatus[models.OrderStatusPending])
	assert.EqualValues(t, 0, stats.OrdersByStatus[models.OrderStatusPreparing])
	assert.Len(t, stats.OrdersByStatus, len(models.OrderStatuses))

	assert.True(t, stats.TotalRevenue.Equal(decimal.RequireFromString("152.50")), stats.TotalRevenue.String())
	assert.True(t, stats.TodayRevenue.Equal(decimal.RequireFromString("52.50")), stats.TodayRevenue.String())

	assert.EqualValues(t, 3, stats.TotalProducts)
	require.Len(t, stats.LowStock, 2)
	assert.Equal(t, "saffron", stats.LowStock[0].Name)
	assert.Equal(t, "honey", stats.LowStock[1].Name)

	require.Len(t, stats.RecentOrders, 5)
	assert.Equal(t, models.OrderStatusCancelled, stats.RecentOrders[0].Status)
	assert.True(t, stats.RecentOrders[0].Total.Equal(decimal.RequireFromString("45")))
}

func TestAdminHandler_DashboardStatsEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewAdminHandler(db, services.NewOrderLedger(db), nil)
	app := newTestApp()
	app.Get("/admin/dashboard", h.DashboardStats)

	status, body := request(t, app, fiber.MethodGet, "/admin/dashboard", nil, "")
	require.Equal(t, fiber.StatusOK, status, body.Error)

	var stats struct {
		TotalOrders  int64            `json:"total_orders"`
		TotalRevenue decimal.Decimal  `json:"total_revenue"`
		RecentOrders []models.Order   `json:"recent_orders"`
		LowStock     []models.Product `json:"low_stock_products"`
	}
	decodeData(t, body, &stats)
	assert.Zero(t, stats.TotalOrders)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.Empty(t, stats.RecentOrders)
	assert.Empty(t, stats.LowStock)
}
