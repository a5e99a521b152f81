package backend

import (
	"context"

	"milkbook/internal/cache"
	"milkbook/internal/records"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and what the caller must release.
type BackendResult struct {
	Store   records.Store
	Cleanup CleanupFunc
	// Cache is set when reads go through a month cache, so its expiry can
	// be driven by a cache.Manager.
	Cache cache.Cleaner
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MongoBackend    BackendType = "mongo"
	SheetsBackend   BackendType = "sheets"
	CSVBackend      BackendType = "csv"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, MongoBackend, SheetsBackend, CSVBackend:
		return true
	default:
		return false
	}
}

// Describe returns a one-line description of the storage behind bt.
func (bt BackendType) Describe() string {
	switch bt {
	case MemoryBackend:
		return "in-process map, optionally seeded from a file"
	case SQLiteBackend:
		return "local SQLite database, upsert by date"
	case PostgresBackend:
		return "PostgreSQL table, upsert by date"
	case MongoBackend:
		return "MongoDB collection, one document per date"
	case SheetsBackend:
		return "Google spreadsheet, rows updated in place or appended"
	case CSVBackend:
		return "one CSV file per month, on disk or in an S3 bucket"
	default:
		return "unknown"
	}
}
