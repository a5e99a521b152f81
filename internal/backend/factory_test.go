package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/cache"
	"milkbook/internal/config"
	"milkbook/internal/core"
	"milkbook/internal/records/csvfile"
)

func TestBackendType(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		assert.True(t, bt.IsValid(), bt)
		assert.NotEqual(t, "unknown", bt.Describe(), bt)
	}
	assert.False(t, BackendType("redis").IsValid())
	assert.Equal(t, config.Backends, GetBackendTypeStrings())
}

func TestFromAppConfig(t *testing.T) {
	app := config.Default()
	app.DataBackend = "csv"
	app.S3Bucket = "milk"
	app.S3Endpoint = "http://minio:9000"
	app.GoogleSpreadsheetID = "sheet-1"

	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, CSVBackend, cfg.Type)
	assert.Equal(t, "milk", cfg.CSV.S3.Bucket)
	assert.Equal(t, "sheet-1", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "Milk", cfg.Sheets.SheetName)
	assert.Equal(t, app.CacheTTL, cfg.Cache.TTL)
	assert.True(t, cfg.cached())

	app.DataBackend = "redis"
	_, err = FromAppConfig(app)
	assert.Error(t, err)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend}, ""},
		{"sqlite without path", Config{Type: SQLiteBackend}, "SQLite database path"},
		{"postgres without dsn", Config{Type: PostgresBackend}, "postgres DSN"},
		{"mongo without uri", Config{Type: MongoBackend}, "mongo URI"},
		{"sheets without id", Config{Type: SheetsBackend}, "missing spreadsheet id"},
		{"csv without target", Config{Type: CSVBackend}, "directory or an S3 bucket"},
		{"cache without size", Config{Type: MemoryBackend, Cache: CacheConfig{TTL: time.Minute}}, "cache size"},
		{"unknown", Config{Type: "tape"}, "invalid backend type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCachedOnlyForRemoteBackends(t *testing.T) {
	c := CacheConfig{TTL: time.Minute, MaxMonths: 4}
	assert.True(t, Config{Type: PostgresBackend, Cache: c}.cached())
	assert.True(t, Config{Type: SheetsBackend, Cache: c}.cached())
	assert.False(t, Config{Type: SQLiteBackend, Cache: c}.cached())
	assert.False(t, Config{Type: CSVBackend, Cache: c, CSV: CSVConfig{Dir: "x"}}.cached())
	assert.False(t, Config{Type: MongoBackend}.cached())
}

func TestCreateMemoryBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	require.NoError(t, err)
	assert.Nil(t, res.Cache)
	assert.NoError(t, res.Close())
	assert.ElementsMatch(t, []string{"remove", "ping"}, Capabilities(res.Store))
}

func TestCreateSQLiteBackend(t *testing.T) {
	f := NewFactory(nil)
	path := filepath.Join(t.TempDir(), "milk.db")
	res, err := f.CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLitePath: path})
	require.NoError(t, err)
	defer res.Close()

	stats, err := res.Store.Upsert(context.Background(), []core.DailyRecord{{Date: "01/01/2025", Morning: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Appended)
}

func TestCreateCSVBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{Type: CSVBackend, CSV: CSVConfig{Dir: t.TempDir()}})
	require.NoError(t, err)
	_, ok := res.Store.(*csvfile.Store)
	assert.True(t, ok)
}

func TestCreateWrapsCacheForS3(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:  CSVBackend,
		CSV:   CSVConfig{S3: csvfile.S3Config{Endpoint: "http://127.0.0.1:9", Bucket: "milk"}},
		Cache: CacheConfig{TTL: time.Minute, MaxMonths: 2},
	})
	require.NoError(t, err)
	_, ok := res.Store.(*cache.CachedStore)
	assert.True(t, ok)
	assert.NotNil(t, res.Cache)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: PostgresBackend})
	assert.Error(t, err)
}
