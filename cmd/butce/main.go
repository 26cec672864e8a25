package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"butce/internal/auth"
	"butce/internal/cache"
	"butce/internal/cli"
	apphttp "butce/internal/http"
	"butce/internal/log"
	"butce/internal/services"
)

func main() {
	cfg, logger := cli.LoadConfig()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, cfg, logger)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	reports := services.NewReportService(be.Store, cfg.CacheSize, cfg.CacheTTL, logger)

	var events services.EventPublisher
	if be.Events != nil {
		events = be.Events
	}

	cacheManager := cache.NewManager(logger)
	if c := reports.Cache(); c != nil {
		cacheManager.Register(c)
	}
	cacheManager.StartCleanup(cfg.CacheTTL)

	srv := apphttp.NewServer(cfg, apphttp.Dependencies{
		Transactions: services.NewTransactionService(be.Store, events, reports, logger),
		Reports:      reports,
		Budget:       services.NewBudgetService(be.Store, be.Store, reports, logger),
		Tokens:       auth.NewTokenService(cfg.SessionSecret, cfg.SessionTTL),
		Counter:      be.Store,
		Store:        be.Store,
		Cache:        cacheManager,
		Logger:       logger,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	}()

	logger.Info("Starting butce server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", be.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		cancel()
		_ = be.Cleanup()
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
