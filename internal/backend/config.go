package backend

import (
	"errors"
	"fmt"
	"time"

	"milkbook/internal/config"
	"milkbook/internal/records/csvfile"
	"milkbook/internal/records/google"
	"milkbook/internal/records/mongo"
	"milkbook/internal/records/postgres"
)

// CacheConfig enables the month read cache when TTL is positive.
type CacheConfig struct {
	TTL       time.Duration
	MaxMonths int
}

// CSVConfig selects local files or, when S3.Bucket is set, a bucket.
type CSVConfig struct {
	Dir string
	S3  csvfile.S3Config
}

// Config holds one typed section per backend. Only the section matching Type
// is read.
type Config struct {
	Type BackendType

	SQLitePath string
	Postgres   postgres.Config
	Mongo      mongo.Config
	Sheets     google.Config
	CSV        CSVConfig

	// Memory backend seed directory
	DataDirectory string

	Cache CacheConfig
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:       backendType,
		SQLitePath: appConfig.SQLiteDBPath,
		Postgres: postgres.Config{
			DSN:      appConfig.PostgresDSN,
			MaxConns: appConfig.PostgresMaxConns,
			MinConns: appConfig.PostgresMinConns,
		},
		Mongo: mongo.Config{
			URI:        appConfig.MongoURI,
			Database:   appConfig.MongoDatabase,
			Collection: appConfig.MongoCollection,
		},
		Sheets: SheetsFromAppConfig(appConfig),
		CSV: CSVConfig{
			Dir: appConfig.CSVDir,
			S3: csvfile.S3Config{
				Endpoint:  appConfig.S3Endpoint,
				AccessKey: appConfig.S3AccessKey,
				SecretKey: appConfig.S3SecretKey,
				Bucket:    appConfig.S3Bucket,
				Region:    appConfig.S3Region,
				Prefix:    appConfig.S3Prefix,
			},
		},
		DataDirectory: "data",
		Cache: CacheConfig{
			TTL:       appConfig.CacheTTL,
			MaxMonths: appConfig.CacheMaxMonths,
		},
	}, nil
}

// SheetsFromAppConfig extracts the spreadsheet settings, which the worker
// also uses for its mirror.
func SheetsFromAppConfig(appConfig *config.Config) google.Config {
	return google.Config{
		SpreadsheetID:   appConfig.GoogleSpreadsheetID,
		SheetName:       appConfig.GoogleSheetName,
		CredentialsJSON: appConfig.GoogleCredentialsJSON,
		CredentialsFile: appConfig.GoogleCredentialsFile,
		OAuth: google.OAuthConfig{
			ClientJSON: appConfig.GoogleOAuthClientJSON,
			ClientFile: appConfig.GoogleOAuthClientFile,
			TokenJSON:  appConfig.GoogleOAuthTokenJSON,
			TokenFile:  appConfig.GoogleOAuthTokenFile,
		},
	}
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLitePath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.Postgres.DSN == "" {
			return errors.New("postgres DSN is required for postgres backend")
		}
	case MongoBackend:
		if c.Mongo.URI == "" {
			return errors.New("mongo URI is required for mongo backend")
		}
	case SheetsBackend:
		if err := c.Sheets.Validate(); err != nil {
			return fmt.Errorf("sheets backend: %w", err)
		}
	case CSVBackend:
		if c.CSV.S3.Bucket == "" && c.CSV.Dir == "" {
			return errors.New("a directory or an S3 bucket is required for csv backend")
		}
		if c.CSV.S3.Bucket != "" && c.CSV.S3.Endpoint == "" {
			return errors.New("S3 endpoint is required when an S3 bucket is set")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data"
	}

	if c.Cache.TTL > 0 && c.Cache.MaxMonths <= 0 {
		return fmt.Errorf("cache size must be positive when cache TTL is %v", c.Cache.TTL)
	}
	return nil
}

// cached reports whether reads should go through the month cache. Only
// backends reached over the network benefit from it.
func (c Config) cached() bool {
	if c.Cache.TTL <= 0 {
		return false
	}
	switch c.Type {
	case PostgresBackend, MongoBackend, SheetsBackend:
		return true
	case CSVBackend:
		return c.CSV.S3.Bucket != ""
	default:
		return false
	}
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend, MongoBackend, SheetsBackend, CSVBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
