// Package config loads milkbook settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"milkbook/internal/core"
)

// DefaultConfigFile is read when CONFIG_PATH is unset and the file exists.
const DefaultConfigFile = "milkbook.yaml"

// Backends accepted by DATA_BACKEND.
var Backends = []string{"memory", "sqlite", "postgres", "mongo", "sheets", "csv"}

type Config struct {
	// HTTP Server
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Backend selection
	DataBackend string `yaml:"dataBackend"`

	// Ledger
	UnitPrice float64 `yaml:"unitPrice"`

	// SQLite
	SQLiteDBPath string `yaml:"sqlitePath"`

	// Postgres
	PostgresDSN      string `yaml:"postgresDsn"`
	PostgresMaxConns int32  `yaml:"postgresMaxConns"`
	PostgresMinConns int32  `yaml:"postgresMinConns"`

	// Mongo
	MongoURI        string `yaml:"mongoUri"`
	MongoDatabase   string `yaml:"mongoDatabase"`
	MongoCollection string `yaml:"mongoCollection"`

	// Google Sheets, used as a backend or as the worker's mirror
	GoogleSpreadsheetID   string `yaml:"googleSpreadsheetId"`
	GoogleSheetName       string `yaml:"googleSheetName"`
	GoogleCredentialsFile string `yaml:"googleCredentialsFile"`
	GoogleCredentialsJSON string `yaml:"-"`
	GoogleOAuthClientFile string `yaml:"googleOAuthClientFile"`
	GoogleOAuthClientJSON string `yaml:"-"`
	GoogleOAuthTokenFile  string `yaml:"googleOAuthTokenFile"`
	GoogleOAuthTokenJSON  string `yaml:"-"`

	// CSV files, on local disk or in an S3 bucket when S3Bucket is set
	CSVDir      string `yaml:"csvDir"`
	S3Endpoint  string `yaml:"s3Endpoint"`
	S3AccessKey string `yaml:"s3AccessKey"`
	S3SecretKey string `yaml:"-"`
	S3Bucket    string `yaml:"s3Bucket"`
	S3Region    string `yaml:"s3Region"`
	S3Prefix    string `yaml:"s3Prefix"`

	// Read cache
	CacheTTL       time.Duration `yaml:"cacheTtl"`
	CacheMaxMonths int           `yaml:"cacheMaxMonths"`

	// AMQP, empty URL disables publishing
	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`
	AMQPQueue    string `yaml:"amqpQueue"`

	// MQTT, empty broker disables totals publishing
	MQTTBroker      string `yaml:"mqttBroker"`
	MQTTTopicPrefix string `yaml:"mqttTopicPrefix"`
	MQTTClientID    string `yaml:"mqttClientId"`
	MQTTUsername    string `yaml:"mqttUsername"`
	MQTTPassword    string `yaml:"-"`

	// Worker
	SyncInterval time.Duration `yaml:"syncInterval"`
}

func Default() *Config {
	return &Config{
		Port:             "8081",
		LogLevel:         "info",
		DataBackend:      "memory",
		UnitPrice:        core.DefaultUnitPrice,
		SQLiteDBPath:     "./data/milkbook.db",
		PostgresMaxConns: 4,
		MongoDatabase:    "milkbook",
		MongoCollection:  "milk_data",
		GoogleSheetName:  "Milk",
		CSVDir:           "./data/csv",
		S3Region:         "us-east-1",
		CacheTTL:         5 * time.Minute,
		CacheMaxMonths:   24,
		AMQPExchange:     "milkbook",
		AMQPQueue:        "month_saved",
		MQTTTopicPrefix:  "milkbook",
		SyncInterval:     10 * time.Minute,
	}
}

// Load builds the configuration. It does not validate it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := hydrateFromFile(cfg, DefaultConfigFile); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.UnitPrice = getEnvFloat("UNIT_PRICE", cfg.UnitPrice)

	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresMaxConns = int32(getEnvInt("POSTGRES_MAX_CONNS", int(cfg.PostgresMaxConns)))
	cfg.PostgresMinConns = int32(getEnvInt("POSTGRES_MIN_CONNS", int(cfg.PostgresMinConns)))

	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.MongoCollection = getEnv("MONGO_COLLECTION", cfg.MongoCollection)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.GoogleCredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", cfg.GoogleCredentialsFile)
	cfg.GoogleCredentialsJSON = getEnv("GOOGLE_CREDENTIALS_JSON", cfg.GoogleCredentialsJSON)
	cfg.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", cfg.GoogleOAuthClientFile)
	cfg.GoogleOAuthClientJSON = getEnv("GOOGLE_OAUTH_CLIENT_JSON", cfg.GoogleOAuthClientJSON)
	cfg.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", cfg.GoogleOAuthTokenFile)
	cfg.GoogleOAuthTokenJSON = getEnv("GOOGLE_OAUTH_TOKEN_JSON", cfg.GoogleOAuthTokenJSON)

	cfg.CSVDir = getEnv("CSV_DIR", cfg.CSVDir)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)

	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.CacheMaxMonths = getEnvInt("CACHE_MAX_MONTHS", cfg.CacheMaxMonths)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.MQTTBroker = getEnv("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.MQTTTopicPrefix)
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.MQTTUsername = getEnv("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getEnv("MQTT_PASSWORD", cfg.MQTTPassword)

	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", cfg.SyncInterval)
}

// SheetsConfigured reports whether a spreadsheet is set up, either as the
// backend or as a mirror target.
func (c *Config) SheetsConfigured() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(Backends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	if err := core.UnitPrice(c.UnitPrice).Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid unit price %v: must not be negative", c.UnitPrice))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(filepath.Dir(c.SQLiteDBPath)); msg != "" {
			errors = append(errors, msg)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
		if c.PostgresMinConns > c.PostgresMaxConns && c.PostgresMaxConns > 0 {
			errors = append(errors, fmt.Sprintf("postgres min conns %d exceeds max conns %d", c.PostgresMinConns, c.PostgresMaxConns))
		}
	case "mongo":
		if c.MongoURI == "" {
			errors = append(errors, "MONGO_URI is required when using mongo backend")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
	case "csv":
		if c.S3Bucket == "" && c.CSVDir == "" {
			errors = append(errors, "either CSV_DIR or S3_BUCKET must be set for csv backend")
		}
		if c.S3Bucket != "" && c.S3Endpoint == "" {
			errors = append(errors, "S3_ENDPOINT is required when S3_BUCKET is set")
		}
	}

	if c.SheetsConfigured() && c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if c.GoogleOAuthClientFile != "" {
		if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.CacheMaxMonths < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must not be negative", c.CacheMaxMonths))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ensureDir creates dir if missing and returns a problem description on failure.
func ensureDir(dir string) string {
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if p, err := core.ParseUnitPrice(value); err == nil {
			return float64(p)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
