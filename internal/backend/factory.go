package backend

import (
	"context"
	"fmt"
	"log/slog"

	"milkbook/internal/cache"
	"milkbook/internal/records"
	"milkbook/internal/records/csvfile"
	"milkbook/internal/records/google"
	"milkbook/internal/records/memory"
	"milkbook/internal/records/mongo"
	"milkbook/internal/records/postgres"
	"milkbook/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	// logger is handed to stores, which tag their own component.
	logger *slog.Logger
	log    *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		log:    logger.With("component", "backend"),
	}
}

// CreateBackend validates config and opens the selected store.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		result, err = f.createPostgresBackend(ctx, config)
	case MongoBackend:
		result, err = f.createMongoBackend(ctx, config)
	case SheetsBackend:
		result, err = f.createSheetsBackend(ctx, config)
	case CSVBackend:
		result, err = f.createCSVBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.cached() {
		cs := cache.NewCachedStore(result.Store, config.Cache.MaxMonths, config.Cache.TTL, f.logger)
		result.Store = cs
		result.Cache = cs.Cleaner()
		f.log.Info("Month read cache enabled",
			"backend", config.Type,
			"ttl", config.Cache.TTL,
			"max_months", config.Cache.MaxMonths)
	}
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)
	f.log.Info("Initialized memory backend", "data_directory", dataDir, "seeded", store.Len())

	return &BackendResult{Store: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.log.Info("Initialized SQLite backend", "db_path", config.SQLitePath)
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.Open(ctx, config.Postgres, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres backend: %w", err)
	}

	f.log.Info("Initialized postgres backend", "max_conns", config.Postgres.MaxConns)
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := mongo.Open(ctx, config.Mongo, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mongo backend: %w", err)
	}

	f.log.Info("Initialized mongo backend", "database", config.Mongo.Database, "collection", config.Mongo.Collection)
	return &BackendResult{Store: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := google.New(ctx, config.Sheets, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.log.Info("Initialized Google Sheets backend", "sheet", config.Sheets.SheetName)
	return &BackendResult{Store: client}, nil
}

func (f *DefaultFactory) createCSVBackend(config Config) (*BackendResult, error) {
	var blobs csvfile.Blobs
	if config.CSV.S3.Bucket != "" {
		bucket, err := csvfile.NewS3Bucket(config.CSV.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CSV bucket: %w", err)
		}
		blobs = bucket
		f.log.Info("Initialized CSV backend", "bucket", config.CSV.S3.Bucket, "prefix", config.CSV.S3.Prefix)
	} else {
		blobs = csvfile.LocalDir{Dir: config.CSV.Dir}
		f.log.Info("Initialized CSV backend", "dir", config.CSV.Dir)
	}

	return &BackendResult{Store: csvfile.New(blobs, f.logger)}, nil
}

// Capabilities lists the optional interfaces store implements.
func Capabilities(store records.Store) []string {
	var caps []string
	if _, ok := store.(records.Remover); ok {
		caps = append(caps, "remove")
	}
	if _, ok := store.(records.Pinger); ok {
		caps = append(caps, "ping")
	}
	return caps
}
