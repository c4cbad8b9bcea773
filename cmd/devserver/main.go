package main

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/rosa/ecogoals-sync/internal/config"
	"github.com/rosa/ecogoals-sync/internal/database"
	"github.com/rosa/ecogoals-sync/internal/handlers"
	"github.com/rosa/ecogoals-sync/internal/logger"
	"github.com/rosa/ecogoals-sync/internal/routes"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	if err := database.MigrateServer(db); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}

	app := fiber.New()
	routes.Setup(app, handlers.New(db, log))

	log.Info("dev goal authority listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
