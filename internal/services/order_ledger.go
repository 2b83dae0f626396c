package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/zar/internal/models"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrEmptyOrder      = fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	ErrLedgerWrite     = errors.New("order ledger write failed")

	errTrackingCodesExhausted = errors.New("no unused tracking code found")
)

const (
	// DefaultTrackingPrefix is used when no tracking code source is configured.
	DefaultTrackingPrefix = "ZAR"

	// maxCreateAttempts bounds retries after a unique violation on the
	// tracking code, which only happens when two creators race.
	maxCreateAttempts = 5

	// maxTrackingCodeDraws stops a broken code source from spinning forever.
	maxTrackingCodeDraws = 100

	stockDeduct  = -1
	stockRestore = 1
)

// NewOrderItem is one requested line of a new order.
type NewOrderItem struct {
	ProductID uint
	Quantity  int
	Price     decimal.Decimal
}

// NewOrder is the input of OrderLedger.Create. Totals are taken as given.
type NewOrder struct {
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	DeliveryZoneID  uint
	DeliverySlotID  uint
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	Total           decimal.Decimal
	Notes           string
	Items           []NewOrderItem
}

// Validate reports the first missing or malformed field. Every returned
// error wraps ErrInvalidOrder.
func (o NewOrder) Validate() error {
	switch {
	case strings.TrimSpace(o.CustomerName) == "":
		return fmt.Errorf("%w: customer_name is required", ErrInvalidOrder)
	case strings.TrimSpace(o.CustomerPhone) == "":
		return fmt.Errorf("%w: customer_phone is required", ErrInvalidOrder)
	case strings.TrimSpace(o.CustomerAddress) == "":
		return fmt.Errorf("%w: customer_address is required", ErrInvalidOrder)
	case o.DeliveryZoneID == 0:
		return fmt.Errorf("%w: delivery_zone_id is required", ErrInvalidOrder)
	case o.DeliverySlotID == 0:
		return fmt.Errorf("%w: delivery_slot_id is required", ErrInvalidOrder)
	case o.Subtotal.IsNegative() || o.DeliveryFee.IsNegative() || o.Total.IsNegative():
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidOrder)
	case len(o.Items) == 0:
		return ErrEmptyOrder
	}

	for i, item := range o.Items {
		switch {
		case item.ProductID == 0:
			return fmt.Errorf("%w: items[%d].product_id is required", ErrInvalidOrder, i)
		case item.Quantity <= 0:
			return fmt.Errorf("%w: items[%d].quantity must be positive", ErrInvalidOrder, i)
		case item.Price.IsNegative():
			return fmt.Errorf("%w: items[%d].price must not be negative", ErrInvalidOrder, i)
		}
	}
	return nil
}

// OrderFilter narrows OrderLedger.List. A zero Limit returns every match.
type OrderFilter struct {
	Status models.OrderStatus
	Search string
	Limit  int
	Offset int
}

func (f OrderFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		db = db.Where(
			"LOWER(tracking_code) LIKE ? OR LOWER(customer_name) LIKE ? OR customer_phone LIKE ?",
			like, like, "%"+search+"%",
		)
	}
	return db
}

// LedgerOption customises an OrderLedger.
type LedgerOption func(*OrderLedger)

// WithTrackingCodes replaces the tracking code source.
func WithTrackingCodes(source TrackingCodeSource) LedgerOption {
	return func(l *OrderLedger) {
		l.codes = source
	}
}

// WithTrackingCache enables read-through caching of tracking lookups.
func WithTrackingCache(cache TrackingCache) LedgerOption {
	return func(l *OrderLedger) {
		l.cache = cache
	}
}

// OrderLedger persists orders with their items and keeps product stock in
// line with them: stock is held for every order whose status is not
// cancelled.
type OrderLedger struct {
	db    *gorm.DB
	codes TrackingCodeSource
	cache TrackingCache
}

// NewOrderLedger constructs an OrderLedger.
func NewOrderLedger(db *gorm.DB, opts ...LedgerOption) *OrderLedger {
	l := &OrderLedger{
		db:    db,
		codes: NewTrackingCodeGenerator(DefaultTrackingPrefix),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create stores the order header, its items and the stock deduction in one
// transaction and returns the new order id.
func (l *OrderLedger) Create(ctx context.Context, in NewOrder) (uint, error) {
	if len(in.Items) == 0 {
		return 0, ErrEmptyOrder
	}

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		id, err := l.createOnce(ctx, in)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrProductNotFound) {
			return 0, err
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, fmt.Errorf("%w: create order: %w", ErrLedgerWrite, err)
		}
		log.Printf("[Order] tracking code collided on insert, attempt %d/%d", attempt, maxCreateAttempts)
		lastErr = err
	}
	return 0, fmt.Errorf("%w: create order after %d attempts: %w", ErrLedgerWrite, maxCreateAttempts, lastErr)
}

func (l *OrderLedger) createOnce(ctx context.Context, in NewOrder) (uint, error) {
	var orderID uint
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := l.unusedTrackingCode(ctx, tx)
		if err != nil {
			return err
		}

		order := models.Order{
			TrackingCode:    code,
			CustomerName:    strings.TrimSpace(in.CustomerName),
			CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
			CustomerAddress: strings.TrimSpace(in.CustomerAddress),
			DeliveryZoneID:  in.DeliveryZoneID,
			DeliverySlotID:  in.DeliverySlotID,
			Subtotal:        in.Subtotal,
			DeliveryFee:     in.DeliveryFee,
			Total:           in.Total,
			Status:          models.OrderStatusPending,
			Notes:           strings.TrimSpace(in.Notes),
		}
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(in.Items))
		for _, line := range in.Items {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     line.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			items = append(items, item)
		}

		for _, item := range items {
			res := shiftStock(tx, item, stockDeduct)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %d", ErrProductNotFound, item.ProductID)
			}
		}

		orderID = order.ID
		return nil
	})
	return orderID, err
}

func (l *OrderLedger) unusedTrackingCode(ctx context.Context, tx *gorm.DB) (string, error) {
	for draw := 0; draw < maxTrackingCodeDraws; draw++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := l.codes.Generate()
		if err != nil {
			return "", err
		}

		var count int64
		if err := tx.Model(&models.Order{}).Where("tracking_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errTrackingCodesExhausted
}

// GetByID returns the order with its items, or nil when it does not exist.
func (l *OrderLedger) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	return l.find(l.db.WithContext(ctx), "orders.id = ?", id)
}

// GetByTrackingCode returns the order with its items, or nil when no order
// carries code. Only the order header is cached; the delivery zone, slot
// and items are always read live.
func (l *OrderLedger) GetByTrackingCode(ctx context.Context, code string) (*models.Order, error) {
	db := l.db.WithContext(ctx)
	if l.cache != nil {
		cached, err := l.cache.Get(ctx, code)
		if err != nil {
			log.Printf("[Cache] tracking lookup %s: %v", code, err)
		} else if cached != nil {
			if err := attachDetails(db, cached); err != nil {
				return nil, err
			}
			return cached, nil
		}
	}

	order, err := l.find(db, "orders.tracking_code = ?", code)
	if err != nil || order == nil {
		return order, err
	}
	l.remember(ctx, order)
	return order, nil
}

// remember stores the order header and drops it again if the row changed
// while it was being stored, so a write that committed between the read
// and the store never leaves a stale entry behind.
func (l *OrderLedger) remember(ctx context.Context, order *models.Order) {
	if l.cache == nil {
		return
	}
	header := *order
	header.DeliveryZone = nil
	header.DeliverySlot = nil
	header.Items = nil
	if err := l.cache.Set(ctx, &header); err != nil {
		log.Printf("[Cache] store %s: %v", order.TrackingCode, err)
		return
	}

	var current models.Order
	err := l.db.WithContext(ctx).Select("id", "status", "updated_at").
		Where("id = ?", order.ID).
		Take(&current).Error
	if err == nil && current.Status == order.Status && current.UpdatedAt.Equal(order.UpdatedAt) {
		return
	}
	l.invalidate(ctx, order.TrackingCode)
}

func (l *OrderLedger) find(db *gorm.DB, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := db.Where(query, arg).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	if err := attachDetails(db, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// attachDetails loads the delivery zone, slot and items of an order header.
func attachDetails(db *gorm.DB, order *models.Order) error {
	var zones []models.DeliveryZone
	if err := db.Where("id = ?", order.DeliveryZoneID).Limit(1).Find(&zones).Error; err != nil {
		return fmt.Errorf("load delivery zone: %w", err)
	}
	order.DeliveryZone = nil
	if len(zones) > 0 {
		order.DeliveryZone = &zones[0]
	}

	var slots []models.DeliverySlot
	if err := db.Where("id = ?", order.DeliverySlotID).Limit(1).Find(&slots).Error; err != nil {
		return fmt.Errorf("load delivery slot: %w", err)
	}
	order.DeliverySlot = nil
	if len(slots) > 0 {
		order.DeliverySlot = &slots[0]
	}

	items, err := loadItems(db, order.ID)
	if err != nil {
		return err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	return nil
}

// loadItems fetches the items of the given orders, joined with the current
// product name and image, grouped by order id.
func loadItems(db *gorm.DB, orderIDs ...uint) (map[uint][]models.OrderItem, error) {
	grouped := make(map[uint][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return grouped, nil
	}

	var items []models.OrderItem
	err := db.Table("order_items AS oi").
		Select("oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, " +
			"COALESCE(p.name, '') AS product_name, COALESCE(p.image_url, '') AS image_url").
		Joins("LEFT JOIN products AS p ON p.id = oi.product_id").
		Where("oi.order_id IN ?", orderIDs).
		Order("oi.id").
		Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	return grouped, nil
}

// List returns one page of orders, newest first, and the number of orders
// matching the filter.
func (l *OrderLedger) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	db := l.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Order{}).Scopes(filter.apply).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := db.Scopes(filter.apply).Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	orders := []models.Order{}
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	ids := make([]uint, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := loadItems(db, ids...)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return orders, total, nil
}

// StatusGuard vets a status change against the current status of the
// locked order. A non-nil error aborts the change and is returned as is.
type StatusGuard func(from, to models.OrderStatus) error

// TransitionError reports a status change the order lifecycle forbids.
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

// LifecycleGuard only admits moves allowed by models.CanTransition.
func LifecycleGuard(from, to models.OrderStatus) error {
	if models.CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// SetStatus moves the order to status. Setting the current status again is
// a no-op that still succeeds. Entering cancelled returns the held stock;
// leaving it takes the stock again. The transition graph is not checked.
func (l *OrderLedger) SetStatus(ctx context.Context, id uint, status models.OrderStatus) error {
	_, err := l.ChangeStatus(ctx, id, status, nil)
	return err
}

// ChangeStatus is SetStatus with an optional guard evaluated on the locked
// row. It returns the status the order had before the change.
func (l *OrderLedger) ChangeStatus(ctx context.Context, id uint, status models.OrderStatus, guard StatusGuard) (models.OrderStatus, error) {
	if !status.Valid() {
		return "", ErrInvalidStatus
	}

	var (
		code     string
		previous models.OrderStatus
		rejected error
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		code = order.TrackingCode
		previous = order.Status

		if guard != nil {
			if rejected = guard(order.Status, status); rejected != nil {
				return rejected
			}
		}

		wasCancelled := order.Status == models.OrderStatusCancelled
		isCancelled := status == models.OrderStatusCancelled
		switch {
		case !wasCancelled && isCancelled:
			err = adjustOrderStock(tx, id, stockRestore)
		case wasCancelled && !isCancelled:
			err = adjustOrderStock(tx, id, stockDeduct)
		}
		if err != nil {
			return err
		}

		return tx.Model(&models.Order{}).Where("id = ?", id).Update("status", status).Error
	})
	if rejected != nil {
		return previous, rejected
	}
	if err != nil {
		return "", ledgerError("set order status", err)
	}

	l.invalidate(ctx, code)
	return previous, nil
}

// Delete removes the order and its items, returning held stock first.
func (l *OrderLedger) Delete(ctx context.Context, id uint) error {
	var code string
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		code = order.TrackingCode

		if order.Status != models.OrderStatusCancelled {
			if err := adjustOrderStock(tx, id, stockRestore); err != nil {
				return err
			}
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Order{}, id).Error
	})
	if err != nil {
		return ledgerError("delete order", err)
	}

	l.invalidate(ctx, code)
	return nil
}

// DeductStock subtracts every item quantity of the order from its product.
// Stock is not checked for going negative.
func (l *OrderLedger) DeductStock(ctx context.Context, orderID uint) error {
	return l.moveStock(ctx, orderID, stockDeduct)
}

// RestoreStock adds every item quantity of the order back to its product.
func (l *OrderLedger) RestoreStock(ctx context.Context, orderID uint) error {
	return l.moveStock(ctx, orderID, stockRestore)
}

func (l *OrderLedger) moveStock(ctx context.Context, orderID uint, direction int) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrOrderNotFound
		}
		return adjustOrderStock(tx, orderID, direction)
	})
	if err != nil {
		return ledgerError("adjust stock", err)
	}
	return nil
}

func (l *OrderLedger) invalidate(ctx context.Context, code string) {
	if l.cache == nil || code == "" {
		return
	}
	if err := l.cache.Invalidate(ctx, code); err != nil {
		log.Printf("[Cache] invalidate %s: %v", code, err)
	}
}

func lockOrder(tx *gorm.DB, id uint) (*models.Order, error) {
	query := tx
	// SQLite has no row locks; the whole database is locked by the write.
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order models.Order
	err := query.Select("id", "tracking_code", "status").Where("id = ?", id).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func adjustOrderStock(tx *gorm.DB, orderID uint, direction int) error {
	var items []models.OrderItem
	if err := tx.Select("id", "product_id", "quantity").
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error; err != nil {
		return err
	}

	for _, item := range items {
		if err := shiftStock(tx, item, direction).Error; err != nil {
			return err
		}
	}
	return nil
}

// shiftStock applies a relative update so concurrent adjustments never lose
// each other's writes.
func shiftStock(tx *gorm.DB, item models.OrderItem, direction int) *gorm.DB {
	return tx.Model(&models.Product{}).
		Where("id = ?", item.ProductID).
		UpdateColumn("stock", gorm.Expr("stock + ?", direction*item.Quantity))
}

func ledgerError(op string, err error) error {
	if errors.Is(err, ErrOrderNotFound) {
		return ErrOrderNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrLedgerWrite, op, err)
}
