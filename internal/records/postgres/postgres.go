// Package postgres stores milk records in a PostgreSQL table keyed by date.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config selects the database and pool sizing.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// Repository persists records with INSERT ... ON CONFLICT.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var (
	_ records.Store   = (*Repository)(nil)
	_ records.Remover = (*Repository)(nil)
	_ records.Pinger  = (*Repository)(nil)
)

// Open migrates the schema and connects a pool.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if err := RunMigrations(cfg.DSN); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return New(pool, logger), nil
}

// New wraps an existing pool. The schema must already exist.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger.With("component", "storage.postgres")}
}

// RunMigrations applies the embedded schema using the pgx/v5 migrate driver.
func RunMigrations(dsn string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// DSN to the scheme the pgx/v5 driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Fetch implements records.Fetcher
func (r *Repository) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	out := make(map[string]records.Quantities, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT date, morning, evening
		FROM milk_data
		WHERE date = ANY($1)
	`, dates)
	if err != nil {
		return nil, fmt.Errorf("select milk data: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			date string
			q    records.Quantities
		)
		if err := rows.Scan(&date, &q.Morning, &q.Evening); err != nil {
			return nil, fmt.Errorf("scan milk data: %w", err)
		}
		out[date] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milk data: %w", err)
	}
	return out, nil
}

// Upsert implements records.Upserter. The xmax system column is zero for
// freshly inserted tuples, which tells inserts and updates apart.
func (r *Repository) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	var stats records.UpsertStats
	if len(recs) == 0 {
		return stats, nil
	}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return stats, err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO milk_data (date, morning, evening, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (date) DO UPDATE SET
				morning = EXCLUDED.morning,
				evening = EXCLUDED.evening,
				updated_at = now()
			RETURNING (xmax = 0) AS inserted
		`, rec.Date, rec.Morning, rec.Evening)
	}

	results := tx.SendBatch(ctx, batch)
	for _, rec := range recs {
		var inserted bool
		if err := results.QueryRow().Scan(&inserted); err != nil {
			results.Close()
			return records.UpsertStats{}, fmt.Errorf("upsert %s: %w", rec.Date, err)
		}
		if inserted {
			stats.Appended++
		} else {
			stats.Updated++
		}
	}
	if err := results.Close(); err != nil {
		return records.UpsertStats{}, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return records.UpsertStats{}, fmt.Errorf("commit upsert: %w", err)
	}

	r.logger.DebugContext(ctx, "Milk records saved to Postgres",
		"updated", stats.Updated,
		"appended", stats.Appended)
	return stats, nil
}

// Remove implements records.Remover
func (r *Repository) Remove(ctx context.Context, dates []string) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM milk_data WHERE date = ANY($1)`, dates)
	if err != nil {
		return 0, fmt.Errorf("delete milk data: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
