package handlers

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/zar/internal/models"
)

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// DeliveryHandler manages delivery zones and time slots.
type DeliveryHandler struct {
	db *gorm.DB
}

// NewDeliveryHandler constructs DeliveryHandler.
func NewDeliveryHandler(db *gorm.DB) *DeliveryHandler {
	return &DeliveryHandler{db: db}
}

// ListZones returns active delivery zones.
func (h *DeliveryHandler) ListZones(c *fiber.Ctx) error {
	zones := []models.DeliveryZone{}
	if err := h.db.WithContext(c.UserContext()).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&zones).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": zones})
}

// ListSlots returns active delivery slots in display order.
func (h *DeliveryHandler) ListSlots(c *fiber.Ctx) error {
	slots := []models.DeliverySlot{}
	if err := h.db.WithContext(c.UserContext()).
		Where("is_active = ?", true).
		Order("sort_order asc").Order("start_time asc").
		Find(&slots).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": slots})
}

type zoneRequest struct {
	Name          *string          `json:"name"`
	Fee           *decimal.Decimal `json:"fee"`
	EstimatedTime *string          `json:"estimated_time"`
	IsActive      *bool            `json:"is_active"`
}

func (r zoneRequest) apply(zone *models.DeliveryZone) error {
	if r.Name != nil {
		zone.Name = strings.TrimSpace(*r.Name)
	}
	if r.Fee != nil {
		zone.Fee = *r.Fee
	}
	if r.EstimatedTime != nil {
		zone.EstimatedTime = strings.TrimSpace(*r.EstimatedTime)
	}
	if r.IsActive != nil {
		zone.IsActive = *r.IsActive
	}

	if zone.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if zone.Fee.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "fee must not be negative")
	}
	return nil
}

// CreateZone adds a delivery zone.
func (h *DeliveryHandler) CreateZone(c *fiber.Ctx) error {
	var req zoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	zone := models.DeliveryZone{IsActive: true}
	if err := req.apply(&zone); err != nil {
		return err
	}

	if err := h.db.WithContext(c.UserContext()).Create(&zone).Error; err != nil {
		return duplicateAs(err, "zone name already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": zone})
}

// UpdateZone changes the fields present in the request.
func (h *DeliveryHandler) UpdateZone(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req zoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	db := h.db.WithContext(c.UserContext())
	var zone models.DeliveryZone
	if err := db.First(&zone, id).Error; err != nil {
		return notFoundAs(err, "delivery zone not found")
	}

	if err := req.apply(&zone); err != nil {
		return err
	}
	if err := db.Save(&zone).Error; err != nil {
		return duplicateAs(err, "zone name already exists")
	}

	return c.JSON(fiber.Map{"success": true, "data": zone})
}

// DeleteZone removes a zone no order points at.
func (h *DeliveryHandler) DeleteZone(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.deleteUnreferenced(c, &models.DeliveryZone{}, id, "delivery_zone_id", "delivery zone"); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "delivery zone deleted"})
}

type slotRequest struct {
	Label     *string `json:"label"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	SortOrder *int    `json:"sort_order"`
	IsActive  *bool   `json:"is_active"`
}

func (r slotRequest) apply(slot *models.DeliverySlot) error {
	if r.Label != nil {
		slot.Label = strings.TrimSpace(*r.Label)
	}
	if r.StartTime != nil {
		slot.StartTime = strings.TrimSpace(*r.StartTime)
	}
	if r.EndTime != nil {
		slot.EndTime = strings.TrimSpace(*r.EndTime)
	}
	if r.SortOrder != nil {
		slot.SortOrder = *r.SortOrder
	}
	if r.IsActive != nil {
		slot.IsActive = *r.IsActive
	}

	switch {
	case slot.Label == "":
		return fiber.NewError(fiber.StatusBadRequest, "label is required")
	case !clockTime.MatchString(slot.StartTime), !clockTime.MatchString(slot.EndTime):
		return fiber.NewError(fiber.StatusBadRequest, "start_time and end_time must be HH:MM")
	case slot.StartTime >= slot.EndTime:
		return fiber.NewError(fiber.StatusBadRequest, "start_time must be before end_time")
	}
	return nil
}

// CreateSlot adds a delivery slot.
func (h *DeliveryHandler) CreateSlot(c *fiber.Ctx) error {
	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	slot := models.DeliverySlot{IsActive: true}
	if err := req.apply(&slot); err != nil {
		return err
	}

	if err := h.db.WithContext(c.UserContext()).Create(&slot).Error; err != nil {
		return duplicateAs(err, "slot label already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": slot})
}

// UpdateSlot changes the fields present in the request.
func (h *DeliveryHandler) UpdateSlot(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req slotRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	db := h.db.WithContext(c.UserContext())
	var slot models.DeliverySlot
	if err := db.First(&slot, id).Error; err != nil {
		return notFoundAs(err, "delivery slot not found")
	}

	if err := req.apply(&slot); err != nil {
		return err
	}
	if err := db.Save(&slot).Error; err != nil {
		return duplicateAs(err, "slot label already exists")
	}

	return c.JSON(fiber.Map{"success": true, "data": slot})
}

// DeleteSlot removes a slot no order points at.
func (h *DeliveryHandler) DeleteSlot(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.deleteUnreferenced(c, &models.DeliverySlot{}, id, "delivery_slot_id", "delivery slot"); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "delivery slot deleted"})
}

// deleteUnreferenced deletes row id of model unless an order references it
// through column. Such rows are expected to be deactivated instead.
func (h *DeliveryHandler) deleteUnreferenced(c *fiber.Ctx, model interface{}, id uint, column, label string) error {
	return h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var referenced int64
		if err := tx.Model(&models.Order{}).Where(column+" = ?", id).Count(&referenced).Error; err != nil {
			return err
		}
		if referenced > 0 {
			return fiber.NewError(fiber.StatusConflict, label+" is used by existing orders; deactivate it instead")
		}

		res := tx.Delete(model, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, label+" not found")
		}
		return nil
	})
}

func notFoundAs(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, message)
	}
	return err
}

func duplicateAs(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fiber.NewError(fiber.StatusConflict, message)
	}
	return err
}
