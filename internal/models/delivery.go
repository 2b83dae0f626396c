package models

import (
	"github.com/shopspring/decimal"
)

// DeliveryZone is an area the shop delivers to, with its flat fee.
type DeliveryZone struct {
	BaseModel
	Name          string          `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Fee           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"fee"`
	EstimatedTime string          `gorm:"size:64" json:"estimated_time"`
	IsActive      bool            `json:"is_active"`
}

// DeliverySlot is a time window customers pick at checkout.
type DeliverySlot struct {
	BaseModel
	Label     string `gorm:"size:64;uniqueIndex;not null" json:"label"`
	StartTime string `gorm:"size:5" json:"start_time"`
	EndTime   string `gorm:"size:5" json:"end_time"`
	SortOrder int    `json:"sort_order"`
	IsActive  bool   `json:"is_active"`
}
