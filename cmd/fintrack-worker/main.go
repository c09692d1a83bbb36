package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/docstore"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting fintrack-worker")

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()

	backend, err := cli.InitStore(initCtx, logger.Logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Google Sheets export is optional
	var exporter sheets.TransactionExporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(initCtx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	events, err := cli.InitEventClient(logger.Logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	// The store cannot enumerate users, so reconciliation starts from the
	// default user and learns the others from incoming events.
	scopes := worker.NewScopeSet(docstore.Scope{AppID: cfg.AppID, UserID: cfg.DefaultUserID})
	ledgerWorker := worker.NewLedgerWorker(backend.Store, exporter, scopes)
	processor := worker.NewReconcileProcessor(backend.Store, scopes, worker.ReconcileProcessorConfig{
		PollInterval: cfg.ReconcileInterval,
	})

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Reconcile processor stop error", "error", err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if events != nil {
		g.Go(func() error {
			err := events.ConsumeLedgerEvents(gctx, ledgerWorker.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping event consumption - reconciliation only")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Event consumption failed", "error", err)
	}

	cli.WaitForShutdown(ctx, done)

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
	stats := processor.Stats()
	logger.Info("Worker stopped",
		"sweeps", stats.Sweeps,
		"scopes_checked", stats.ScopesChecked,
		"drifted", stats.Drifted)
}
