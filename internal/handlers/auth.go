package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/zar/internal/middleware"
	"github.com/example/zar/internal/models"
	"github.com/example/zar/internal/utils"
)

// TokenIssuer signs admin tokens.
type TokenIssuer interface {
	Issue(claims utils.Claims) (string, error)
}

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db     *gorm.DB
	tokens TokenIssuer
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates an admin with username and password.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "username and password are required")
	}

	var admin models.Admin
	err := h.db.WithContext(c.UserContext()).Where("username = ?", req.Username).First(&admin).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// Unknown usernames still pay for a bcrypt comparison.
	if !utils.CheckPassword(admin.PasswordHash, req.Password) {
		log.Printf("[Auth] failed login for %q from %s", req.Username, c.IP())
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := h.tokens.Issue(utils.Claims{
		"id":       admin.ID,
		"username": admin.Username,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token": token,
			"admin": admin,
		},
	})
}

// Me returns the admin the request is authenticated as.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, ok := middleware.GetCurrentAdmin(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var admin models.Admin
	if err := h.db.WithContext(c.UserContext()).First(&admin, identity.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "admin no longer exists")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    admin,
	})
}
