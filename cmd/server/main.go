package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/example/zar/internal/config"
	"github.com/example/zar/internal/database"
	"github.com/example/zar/internal/handlers"
	"github.com/example/zar/internal/routes"
	"github.com/example/zar/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL, cfg.DBLogLevel)

	app := fiber.New(fiber.Config{
		AppName:      "Zar Backend",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    handlers.MaxUploadSize + 1<<20,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	var deps routes.Deps

	if cfg.RedisAddr != "" {
		client := services.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Printf("[Cache] redis at %s unreachable, tracking cache disabled: %v", cfg.RedisAddr, err)
			_ = client.Close()
		} else {
			log.Printf("[Cache] tracking cache enabled on %s", cfg.RedisAddr)
			deps.Cache = services.NewRedisTrackingCache(client, 0)
			defer client.Close()
		}
		cancel()
	}

	deps.Events = services.NewKafkaOrderEvents(cfg.KafkaBrokers, cfg.KafkaTopic, "zar-server")
	if deps.Events != nil {
		log.Printf("[Events] publishing to %s on %v", cfg.KafkaTopic, cfg.KafkaBrokers)
		defer func() {
			if err := deps.Events.Close(); err != nil {
				log.Printf("[Events] close: %v", err)
			}
		}()
	}

	routes.Register(app, db, cfg, deps)

	go func() {
		log.Printf("Starting server on :%s", cfg.AppPort)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Fatalf("fiber.Listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
