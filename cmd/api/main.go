package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecofusion-backend/internal/app"
	"ecofusion-backend/internal/config"
	"ecofusion-backend/internal/interfaces/router"
	"ecofusion-backend/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	l := logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg, l, nil)
	if err != nil {
		l.Fatal().Err(err).Msg("startup failed")
	}
	defer c.Close()
	l.Info().Msg("postgres, redis and ledger connected")

	for _, s := range c.Sweepers() {
		s.Start(ctx)
		l.Info().Str("sweeper", s.Name()).Msg("sweeper started")
	}

	fa := router.CreateApp(c)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fa.ShutdownWithContext(shutdownCtx); err != nil {
			l.Warn().Err(err).Msg("shutdown")
		}
	}()

	l.Info().Str("port", cfg.Port).Msgf("health check: http://localhost:%s/health/json", cfg.Port)
	if err := fa.Listen(":" + cfg.Port); err != nil {
		l.Fatal().Err(err).Msg("listen")
	}
}
