package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/zar/internal/config"
	"github.com/example/zar/internal/handlers"
	"github.com/example/zar/internal/middleware"
	"github.com/example/zar/internal/services"
	"github.com/example/zar/internal/utils"
)

// UploadsPath is the URL prefix uploaded images are served under.
const UploadsPath = "/uploads"

// Deps carries the optional backends built by main. Zero values disable them.
type Deps struct {
	Cache  services.TrackingCache
	Events *services.OrderEvents
	Clock  utils.Clock
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, deps Deps) {
	clock := deps.Clock
	if clock == nil {
		clock = utils.RealClock()
	}

	tokens := utils.NewTokenService(cfg.JWTSecret, cfg.TokenExpires, clock)
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, cfg.Currency)

	codes := services.NewTrackingCodeGenerator(cfg.TrackingPrefix)
	codes.Clock = clock
	ledgerOpts := []services.LedgerOption{services.WithTrackingCodes(codes)}
	if deps.Cache != nil {
		ledgerOpts = append(ledgerOpts, services.WithTrackingCache(deps.Cache))
	}
	ledger := services.NewOrderLedger(db, ledgerOpts...)

	authHandler := handlers.NewAuthHandler(db, tokens)
	productHandler := handlers.NewProductHandler(db)
	deliveryHandler := handlers.NewDeliveryHandler(db)
	orderHandler := handlers.NewOrderHandler(ledger, telegramService, deps.Events)
	adminHandler := handlers.NewAdminHandler(db, ledger, clock)
	uploadHandler := handlers.NewUploadHandler(cfg.UploadDir, UploadsPath)

	app.Static(UploadsPath, cfg.UploadDir)

	api := app.Group("/api")
	requireAdmin := middleware.AuthMiddleware(tokens)

	// Auth
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", requireAdmin, authHandler.Me)

	// Storefront
	api.Get("/products", productHandler.ListProducts)
	api.Get("/products/:id", productHandler.GetProduct)

	delivery := api.Group("/delivery")
	delivery.Get("/zones", deliveryHandler.ListZones)
	delivery.Get("/slots", deliveryHandler.ListSlots)

	orders := api.Group("/orders")
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/track/:code", orderHandler.TrackOrder)

	// Admin panel
	admin := api.Group("/admin", requireAdmin)
	admin.Get("/dashboard", adminHandler.DashboardStats)

	admin.Get("/orders", orderHandler.ListOrders)
	admin.Get("/orders/:id", orderHandler.GetOrder)
	admin.Put("/orders/:id/status", orderHandler.UpdateOrderStatus)
	admin.Delete("/orders/:id", orderHandler.DeleteOrder)

	admin.Get("/products", productHandler.ListAllProducts)
	admin.Post("/products", productHandler.CreateProduct)
	admin.Put("/products/:id", productHandler.UpdateProduct)
	admin.Delete("/products/:id", productHandler.DeleteProduct)

	admin.Post("/delivery/zones", deliveryHandler.CreateZone)
	admin.Put("/delivery/zones/:id", deliveryHandler.UpdateZone)
	admin.Delete("/delivery/zones/:id", deliveryHandler.DeleteZone)
	admin.Post("/delivery/slots", deliveryHandler.CreateSlot)
	admin.Put("/delivery/slots/:id", deliveryHandler.UpdateSlot)
	admin.Delete("/delivery/slots/:id", deliveryHandler.DeleteSlot)

	admin.Post("/upload", uploadHandler.UploadImage)
}
