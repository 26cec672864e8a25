package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"butce/internal/amqp"
	"butce/internal/cli"
	"butce/internal/config"
	"butce/internal/log"
	"butce/internal/services"
	"butce/internal/worker"
)

const connectAttempts = 10

func main() {
	cfg, logger := cli.LoadConfig()
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the report worker")
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend is not shared with the server, reports will only reflect this process")
	}

	// The worker consumes with its own client and never publishes.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	be := cli.OpenBackend(ctx, &storeCfg, logger)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	client, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger, connectAttempts)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err.Error())
		return
	}
	defer client.Close()

	reports := services.NewReportService(be.Store, 0, 0, logger)

	var pruner worker.RateLimitPruner
	if p, ok := be.Store.(worker.RateLimitPruner); ok {
		pruner = p
	}
	w := worker.NewReportWorker(reports, pruner, worker.Config{RefreshInterval: cfg.ReportRefreshInterval}, logger)
	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start report worker", log.FieldError, err.Error())
		return
	}

	logger.Info("Starting butce report worker",
		"backend", cfg.DataBackend,
		"queue", cfg.AMQPQueue,
		"refresh_interval", cfg.ReportRefreshInterval.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeTransactionChanged(gctx, w.HandleTransactionChanged)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", log.FieldError, err.Error())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		logger.Warn("Report worker stop timed out", log.FieldError, err.Error())
	}
	logger.Info("Report worker stopped")
}
