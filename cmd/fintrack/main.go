package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/state"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	currency, err := core.NewCurrencyFormatter(cfg.Currency)
	if err != nil {
		logger.Error("Invalid currency", "currency", cfg.Currency, "error", err)
		os.Exit(1)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := cli.InitStore(initCtx, logger.Logger, cfg)
	cancelInit()
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	events, err := cli.InitEventClient(logger.Logger, cfg)
	if err != nil {
		// The API works without events; consumers catch up via reconciliation.
		logger.Error("Failed to initialize AMQP client, continuing without events", "error", err)
		events = nil
	}

	registry := state.NewRegistry(backend.Store, cfg.AppID,
		state.WithMaxViews(cfg.StateMaxViews),
		state.WithIdleTimeout(cfg.StateIdleTimeout))

	srv := apphttp.NewServer(apphttp.Options{
		Addr:            ":" + cfg.Port,
		Store:           backend.Store,
		Events:          cli.Publisher(events),
		Registry:        registry,
		AppID:           cfg.AppID,
		DefaultUserID:   cfg.DefaultUserID,
		AuthRequired:    cfg.AuthRequired,
		Currency:        currency,
		TrustedProxies:  cfg.TrustedProxies,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		ReportCacheSize: cfg.ReportCacheSize,
		ReportCacheTTL:  cfg.ReportCacheTTL,
		Logger:          logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := registry.Close(); err != nil {
			logger.Error("State registry close error", "error", err)
		}
		if events != nil {
			if err := events.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if backend.Cleanup != nil {
			if err := backend.Cleanup(); err != nil {
				logger.Error("Store close error", "error", err)
			}
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth_required", cfg.AuthRequired,
		"events", events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
