package handlers

//go:generate mockgen -source=order.go -destination=mock_order_test.go -package=handlers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/services"
	"github.com/example/zar/internal/utils"
)

const sideEffectTimeout = 15 * time.Second

// OrderLedger is the order storage the handlers depend on.
type OrderLedger interface {
	Create(ctx context.Context, in services.NewOrder) (uint, error)
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetByTrackingCode(ctx context.Context, code string) (*models.Order, error)
	List(ctx context.Context, filter services.OrderFilter) ([]models.Order, int64, error)
	ChangeStatus(ctx context.Context, id uint, status models.OrderStatus, guard services.StatusGuard) (models.OrderStatus, error)
	Delete(ctx context.Context, id uint) error
}

// OrderNotifier tells shop staff about order activity.
type OrderNotifier interface {
	NotifyNewOrder(ctx context.Context, order *models.Order) error
	NotifyStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) error
}

// OrderEventPublisher emits order lifecycle events.
type OrderEventPublisher interface {
	Publish(ctx context.Context, eventType string, payload services.OrderEventPayload) error
}

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders   OrderLedger
	notifier OrderNotifier
	events   OrderEventPublisher
	dispatch func(func())

	// eventsMu guards lastEvent, which is closed once the most recently
	// queued event has been handed to the publisher.
	eventsMu  sync.Mutex
	lastEvent chan struct{}
}

// NewOrderHandler constructs OrderHandler. notifier and events may be nil.
func NewOrderHandler(orders OrderLedger, notifier OrderNotifier, events OrderEventPublisher) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		notifier: notifier,
		events:   events,
		dispatch: func(fn func()) { go fn() },
	}
}

type orderItemRequest struct {
	ProductID uint            `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone"`
	CustomerAddress string             `json:"customer_address"`
	DeliveryZoneID  uint               `json:"delivery_zone_id"`
	DeliverySlotID  uint               `json:"delivery_slot_id"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	DeliveryFee     decimal.Decimal    `json:"delivery_fee"`
	Total           decimal.Decimal    `json:"total"`
	Notes           string             `json:"notes"`
	Items           []orderItemRequest `json:"items"`
}

func (r createOrderRequest) toNewOrder() services.NewOrder {
	in := services.NewOrder{
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		DeliveryZoneID:  r.DeliveryZoneID,
		DeliverySlotID:  r.DeliverySlotID,
		Subtotal:        r.Subtotal,
		DeliveryFee:     r.DeliveryFee,
		Total:           r.Total,
		Notes:           r.Notes,
		Items:           make([]services.NewOrderItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, services.NewOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return in
}

// CreateOrder places a customer order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in := req.toNewOrder()
	if err := in.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	id, err := h.orders.Create(ctx, in)
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidOrder):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fiber.NewError(fiber.StatusBadRequest, "unknown delivery zone or slot")
	case err != nil:
		log.Printf("[Order] create failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create order")
	}

	order, err := h.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "order disappeared after creation")
	}

	log.Printf("[Order] created %s (id=%d, total=%s)", order.TrackingCode, order.ID, order.Total)

	h.background("notify new order", func(ctx context.Context) error {
		if h.notifier == nil {
			return nil
		}
		return h.notifier.NotifyNewOrder(ctx, order)
	})
	h.publish(services.EventOrderCreated, services.PayloadFromOrder(order))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// TrackOrder returns an order by its public tracking code.
func (h *OrderHandler) TrackOrder(c *fiber.Ctx) error {
	code := services.NormalizeTrackingCode(c.Params("code"))
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "tracking code is required")
	}

	order, err := h.orders.GetByTrackingCode(c.UserContext(), code)
	if err != nil {
		return err
	}
	if order == nil {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// ListOrders returns orders for the admin panel with filtering and pagination.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	status := models.OrderStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status")
	}

	orders, total, err := h.orders.List(c.UserContext(), services.OrderFilter{
		Status: status,
		Search: c.Query("search"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

// GetOrder returns a single order by id.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	order, err := h.orders.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	if order == nil {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// UpdateOrderStatus moves an order along its lifecycle.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if !req.Status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status")
	}

	ctx := c.UserContext()
	previous, err := h.orders.ChangeStatus(ctx, id, req.Status, services.LifecycleGuard)
	if err != nil {
		var transition *services.TransitionError
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		case errors.As(err, &transition):
			return fiber.NewError(fiber.StatusConflict, transition.Error())
		}
		return err
	}

	updated, err := h.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if updated == nil {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	if previous != updated.Status {
		log.Printf("[Order] %s status %s -> %s", updated.TrackingCode, previous, updated.Status)

		h.background("notify status change", func(ctx context.Context) error {
			if h.notifier == nil {
				return nil
			}
			return h.notifier.NotifyStatusChange(ctx, updated, previous)
		})
		payload := services.PayloadFromOrder(updated)
		payload.PreviousStatus = previous
		h.publish(services.EventOrderStatusChanged, payload)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    updated,
	})
}

// DeleteOrder removes an order and returns its stock.
func (h *OrderHandler) DeleteOrder(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	order, err := h.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	if err := h.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	log.Printf("[Order] deleted %s (id=%d)", order.TrackingCode, order.ID)
	h.publish(services.EventOrderDeleted, services.PayloadFromOrder(order))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "order deleted",
	})
}

// publish hands events to the publisher one at a time, in the order they
// were raised, so a status change never overtakes the creation it follows.
func (h *OrderHandler) publish(eventType string, payload services.OrderEventPayload) {
	h.eventsMu.Lock()
	prev := h.lastEvent
	done := make(chan struct{})
	h.lastEvent = done
	h.eventsMu.Unlock()

	h.background("publish "+eventType, func(ctx context.Context) error {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if h.events == nil {
			return nil
		}
		return h.events.Publish(ctx, eventType, payload)
	})
}

// background runs fn detached from the request so slow side channels never
// delay or fail the response.
func (h *OrderHandler) background(name string, fn func(ctx context.Context) error) {
	h.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Printf("[Order] %s failed: %v", name, err)
		}
	})
}
