package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/services"
	"github.com/example/zar/internal/utils"
)

const (
	lowStockThreshold  = 5
	recentOrdersOnDash = 5
)

// AdminHandler serves the admin dashboard.
type AdminHandler struct {
	db     *gorm.DB
	orders OrderLedger
	clock  utils.Clock
}

// NewAdminHandler constructs AdminHandler. A nil clock uses the wall clock.
func NewAdminHandler(db *gorm.DB, orders OrderLedger, clock utils.Clock) *AdminHandler {
	if clock == nil {
		clock = utils.RealClock()
	}
	return &AdminHandler{db: db, orders: orders, clock: clock}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	var totalOrders int64
	if err := db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	type statusCount struct {
		Status models.OrderStatus
		Count  int64
	}
	var statusCounts []statusCount
	if err := db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	ordersByStatus := make(map[models.OrderStatus]int64, len(models.OrderStatuses))
	for _, status := range models.OrderStatuses {
		ordersByStatus[status] = 0
	}
	for _, sc := range statusCounts {
		ordersByStatus[sc.Status] = sc.Count
	}

	totalRevenue, err := revenue(db.Model(&models.Order{}).
		Where("status <> ?", models.OrderStatusCancelled))
	if err != nil {
		return err
	}

	now := h.clock.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todayRevenue, err := revenue(db.Model(&models.Order{}).
		Where("status <> ? AND created_at >= ?", models.OrderStatusCancelled, startOfDay))
	if err != nil {
		return err
	}

	var totalProducts int64
	if err := db.Model(&models.Product{}).Count(&totalProducts).Error; err != nil {
		return err
	}

	lowStock := []models.Product{}
	if err := db.Where("is_active = ? AND stock <= ?", true, lowStockThreshold).
		Order("stock asc").Order("id asc").
		Find(&lowStock).Error; err != nil {
		return err
	}

	recent, _, err := h.orders.List(ctx, services.OrderFilter{Limit: recentOrdersOnDash})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_orders":       totalOrders,
			"orders_by_status":   ordersByStatus,
			"total_revenue":      totalRevenue,
			"today_revenue":      todayRevenue,
			"total_products":     totalProducts,
			"low_stock_products": lowStock,
			"recent_orders":      recent,
		},
	})
}

func revenue(query *gorm.DB) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	if err := query.Select("SUM(total)").Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal.Round(2), nil
}
