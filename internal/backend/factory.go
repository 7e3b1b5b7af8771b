package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"compteur/internal/adapters"
	"compteur/internal/amqp"
	"compteur/internal/storage"
	"compteur/internal/store/google"
	"compteur/internal/store/memory"
	"compteur/internal/store/postgres"
	"compteur/internal/store/postgrest"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case PostgRESTBackend:
		return f.createPostgRESTBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	publisher := f.dialPublisher(config)
	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Backend: wrapPublisher(repo, publisher),
		Cleanup: closeAll(repo.Close, closerOf(publisher)),
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.Connect(ctx, config.DatabaseURL, postgres.Tables{
		Counters: config.StoreCountersTable,
		History:  config.StoreHistoryTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	publisher := f.dialPublisher(config)
	f.logger.Info("Initialized postgres backend", "amqp_enabled", publisher != nil)

	return &BackendResult{
		Backend: wrapPublisher(repo, publisher),
		Cleanup: closeAll(repo.Close, closerOf(publisher)),
	}, nil
}

func (f *DefaultFactory) createPostgRESTBackend(config Config) (*BackendResult, error) {
	cli, err := postgrest.New(postgrest.Options{
		BaseURL:       config.StoreURL,
		Key:           config.StoreKey,
		CountersTable: config.StoreCountersTable,
		HistoryTable:  config.StoreHistoryTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store client: %w", err)
	}

	f.logger.Info("Initialized PostgREST backend", "counters_table", config.StoreCountersTable)

	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CountersSheet:   config.GoogleCountersSheetName,
		HistorySheet:    config.GoogleHistorySheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend")

	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir, time.Now())

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{Backend: store}, nil
}

// dialPublisher connects to the broker when configured. A broker that cannot be
// reached is logged and the backend runs without history events.
func (f *DefaultFactory) dialPublisher(config Config) *amqp.Client {
	if config.AMQPURL == "" || !config.Type.PublishesHistory() {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without history events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

func wrapPublisher(inner Backend, client *amqp.Client) Backend {
	if client == nil {
		return inner
	}
	return adapters.WithPublisher(inner, client)
}

func closerOf(client *amqp.Client) CleanupFunc {
	if client == nil {
		return nil
	}
	return client.Close
}

func closeAll(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
