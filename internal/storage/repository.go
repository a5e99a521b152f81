// Package storage is the SQLite backend of the milk ledger.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"milkbook/internal/core"
	"milkbook/internal/records"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ records.Store   = (*SQLiteRepository)(nil)
	_ records.Remover = (*SQLiteRepository)(nil)
	_ records.Pinger  = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent upserts.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Fetch implements records.Fetcher
func (r *SQLiteRepository) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	out := make(map[string]records.Quantities, len(dates))
	if len(dates) == 0 {
		return out, nil
	}

	query := `SELECT date, morning, evening FROM milk_data WHERE date IN (` + placeholders(len(dates)) + `)`
	rows, err := r.db.QueryContext(ctx, query, args(dates)...)
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

// Upsert implements records.Upserter
func (r *SQLiteRepository) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	var stats records.UpsertStats
	if len(recs) == 0 {
		return stats, nil
	}

	dates := make([]string, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return stats, err
		}
		dates[i] = rec.Date
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := existingDates(ctx, tx, dates)
	if err != nil {
		return stats, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO milk_data (date, morning, evening, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date) DO UPDATE SET
			morning = excluded.morning,
			evening = excluded.evening,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return stats, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.Date, rec.Morning, rec.Evening); err != nil {
			return stats, fmt.Errorf("upsert %s: %w", rec.Date, err)
		}
		if existing[rec.Date] {
			stats.Updated++
		} else {
			stats.Appended++
			existing[rec.Date] = true
		}
	}

	if err := tx.Commit(); err != nil {
		return records.UpsertStats{}, fmt.Errorf("commit upsert: %w", err)
	}

	slog.DebugContext(ctx, "Milk records saved to SQLite",
		"updated", stats.Updated,
		"appended", stats.Appended)

	return stats, nil
}

// Remove implements records.Remover
func (r *SQLiteRepository) Remove(ctx context.Context, dates []string) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM milk_data WHERE date IN (`+placeholders(len(dates))+`)`, args(dates)...)
	if err != nil {
		return 0, fmt.Errorf("delete milk data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func existingDates(ctx context.Context, tx *sql.Tx, dates []string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT date FROM milk_data WHERE date IN (`+placeholders(len(dates))+`)`, args(dates)...)
	if err != nil {
		return nil, fmt.Errorf("select existing dates: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(dates))
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan existing date: %w", err)
		}
		found[d] = true
	}
	return found, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(dates []string) []any {
	out := make([]any, len(dates))
	for i, d := range dates {
		out[i] = d
	}
	return out
}
