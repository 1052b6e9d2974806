package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kakei/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the ledger and aggregate store. Writers are
// serialised on a single connection; every mutation goes through WithTx.
type SQLiteRepository struct {
	db            *sql.DB
	queries       *Queries
	schemaVersion uint
}

// DSN builds the modernc connection string used for both the pool and
// migrations.
func DSN(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	version, err := migrateLedger(dsn)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer; WithTx callers queue on this connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:            db,
		queries:       New(db),
		schemaVersion: version,
	}, nil
}

// SchemaVersion is the migration version the ledger was opened at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise. fn must only use the Queries it is
// given; touching the repository from inside fn would wait on the single
// connection forever.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, userID, id string) (core.Payment, error) {
	return r.queries.GetPayment(ctx, userID, id)
}

func (r *SQLiteRepository) ListPaymentsBetween(ctx context.Context, userID string, from, to time.Time, limit int) ([]core.Payment, error) {
	return r.queries.ListPaymentsBetween(ctx, userID, from, to, limit)
}

func (r *SQLiteRepository) GetSummary(ctx context.Context, userID, yearMonth string) (core.MonthlySummary, error) {
	return r.queries.GetSummary(ctx, userID, yearMonth)
}
