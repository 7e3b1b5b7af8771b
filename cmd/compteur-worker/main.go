package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"compteur/internal/amqp"
	"compteur/internal/backend"
	"compteur/internal/cli"
	"compteur/internal/log"
	"compteur/internal/services"
	"compteur/internal/store/google"
	"compteur/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), "compteur-worker")
	logger.Info("Starting compteur-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.GoogleSpreadsheetID == "" || cfg.AMQPURL == "" {
		logger.Error("The worker needs GOOGLE_SPREADSHEET_ID and AMQP_URL")
		os.Exit(1)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	mirror, err := google.New(initCtx, google.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CountersSheet:   cfg.GoogleCountersSheetName,
		HistorySheet:    cfg.GoogleHistorySheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	cancelInit()
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// With the sqlite backend the worker shares the database file: it records
	// which rows were mirrored and re-sends the ones whose message was lost.
	var (
		tracker   worker.SyncTracker
		processor *services.SyncProcessor
	)
	if backend.BackendType(cfg.DataBackend) == backend.SQLiteBackend {
		repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
		defer repo.Close()
		tracker = repo
		processor = services.NewSyncProcessor(repo, mirror, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			BatchSize:    cfg.SyncBatchSize,
			MinAge:       cfg.SyncInterval,
		})
	} else {
		logger.Info("Outbox polling disabled for this backend", log.FieldBackend, cfg.DataBackend)
	}

	mirrorWorker := worker.NewMirrorWorker(mirror, tracker, nil)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Sync processor stop failed", log.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	if processor != nil {
		if err := processor.Start(gctx); err != nil {
			logger.Error("Failed to start sync processor", log.FieldError, err)
			os.Exit(1)
		}
	}
	g.Go(func() error {
		return amqpClient.ConsumeHistoryAppended(gctx, mirrorWorker.HandleHistoryMessage)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker shutdown complete")
}
