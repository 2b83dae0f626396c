package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/utils"
)

// ProductHandler manages product CRUD.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// ListProducts returns active products for the storefront.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	return h.list(c, true)
}

// ListAllProducts returns every product, including inactive ones.
func (h *ProductHandler) ListAllProducts(c *fiber.Ctx) error {
	return h.list(c, false)
}

func (h *ProductHandler) list(c *fiber.Ctx, activeOnly bool) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Product{})

	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", q, q)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	products := []models.Product{}
	if err := query.
		Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").Order("id desc").
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

// GetProduct loads a single active product.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.db.WithContext(c.UserContext()).
		Where("is_active = ?", true).
		First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// productRequest carries optional fields so PUT only touches what is sent.
type productRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	ImageURL    *string          `json:"image_url"`
	IsActive    *bool            `json:"is_active"`
}

func (r productRequest) apply(product *models.Product) error {
	if r.Name != nil {
		product.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		product.Description = *r.Description
	}
	if r.Category != nil {
		product.Category = strings.TrimSpace(*r.Category)
	}
	if r.Price != nil {
		product.Price = *r.Price
	}
	if r.Stock != nil {
		product.Stock = *r.Stock
	}
	if r.ImageURL != nil {
		product.ImageURL = *r.ImageURL
	}
	if r.IsActive != nil {
		product.IsActive = *r.IsActive
	}

	switch {
	case product.Name == "":
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	case product.Price.IsNegative():
		return fiber.NewError(fiber.StatusBadRequest, "price must not be negative")
	case product.Stock < 0:
		return fiber.NewError(fiber.StatusBadRequest, "stock must not be negative")
	}
	return nil
}

// CreateProduct handles product creation.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	product := models.Product{IsActive: true}
	if err := req.apply(&product); err != nil {
		return err
	}

	if err := h.db.WithContext(c.UserContext()).Create(&product).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct updates the fields present in the request.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	db := h.db.WithContext(c.UserContext())
	var product models.Product
	if err := db.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	if err := req.apply(&product); err != nil {
		return err
	}
	if err := db.Save(&product).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct removes a product that no order references.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var referenced int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&referenced).Error; err != nil {
			return err
		}
		if referenced > 0 {
			return fiber.NewError(fiber.StatusConflict, "product is part of existing orders; deactivate it instead")
		}

		res := tx.Delete(&models.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "product deleted",
	})
}
