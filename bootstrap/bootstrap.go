package bootstrap

import (
	"context"

	"ecofusion-backend/internal/app"
	"ecofusion-backend/internal/config"
	"ecofusion-backend/internal/interfaces/router"
	"ecofusion-backend/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// New builds the fiber app for the serverless entry point in api/. It runs no sweepers; schedule
// `operator reconcile` and `operator expire-listings` instead.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	l := logger.Init(cfg.LogLevel, cfg.LogFormat)
	c, err := app.New(context.Background(), cfg, l, nil)
	if err != nil {
		return nil, err
	}
	return router.CreateApp(c), nil
}
