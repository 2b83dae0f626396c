package models

import (
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var nextStatuses = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:        {OrderStatusConfirmed: true, OrderStatusCancelled: true},
	OrderStatusConfirmed:      {OrderStatusPreparing: true, OrderStatusCancelled: true},
	OrderStatusPreparing:      {OrderStatusOutForDelivery: true, OrderStatusCancelled: true},
	OrderStatusOutForDelivery: {OrderStatusDelivered: true, OrderStatusCancelled: true},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	_, ok := nextStatuses[s]
	return ok
}

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move from one status to another.
// Setting the current status again is always allowed.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return from.Valid()
	}
	return nextStatuses[from][to]
}

type Order struct {
	BaseModel
	TrackingCode    string          `gorm:"size:32;uniqueIndex;not null" json:"tracking_code"`
	CustomerName    string          `gorm:"not null" json:"customer_name"`
	CustomerPhone   string          `gorm:"size:32;not null" json:"customer_phone"`
	CustomerAddress string          `gorm:"type:text;not null" json:"customer_address"`
	DeliveryZoneID  uint            `gorm:"index;not null" json:"delivery_zone_id"`
	DeliveryZone    *DeliveryZone   `json:"delivery_zone,omitempty"`
	DeliverySlotID  uint            `gorm:"not null" json:"delivery_slot_id"`
	DeliverySlot    *DeliverySlot   `json:"delivery_slot,omitempty"`
	Subtotal        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	DeliveryFee     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"delivery_fee"`
	Total           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Status          OrderStatus     `gorm:"size:32;index;not null" json:"status"`
	Notes           string          `gorm:"type:text" json:"notes"`
	Items           []OrderItem     `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

// OrderItem is a line of an order. Price is the unit price at order time;
// ProductName and ImageURL are joined from the live product on read.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"index;not null" json:"order_id"`
	ProductID   uint            `gorm:"index;not null" json:"product_id"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	ProductName string          `gorm:"->;-:migration" json:"product_name"`
	ImageURL    string          `gorm:"->;-:migration" json:"image_url"`
}
