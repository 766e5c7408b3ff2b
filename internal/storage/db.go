// Package storage provides access to the SQLite store holding evaluation
// records, plus the schema inspection and backup helpers the maintenance
// commands rely on.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// connPragmas are applied to every pooled connection through the DSN.
var connPragmas = []string{
	"busy_timeout(5000)",  // Wait up to 5 seconds on lock
	"foreign_keys(1)",     // Enable foreign key constraints
	"synchronous(NORMAL)", // Balance between safety and performance
	"cache_size(-64000)",  // 64MB cache
	"temp_store(MEMORY)",  // Use memory for temp tables
}

// DB represents a database connection with transaction helpers
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// Open opens the SQLite store at path, creating an empty file if none exists.
// Callers that must not create a store resolve the path with paths.FindStore first.
// Only stores created here are switched to WAL; an existing store keeps its
// journal mode so reading it leaves the file untouched.
func Open(path string, logger *slog.Logger) (*DB, error) {
	created := !fileExists(path)

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if created {
		// WAL is a property of the file, so one statement is enough.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set journal mode: %w", err)
		}
		logger.Info("Created new database", "path", path)
	} else {
		logger.Debug("Opened database", "path", path)
	}

	return &DB{
		conn:   conn,
		logger: logger,
		dbPath: path,
	}, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the file the store was opened from
func (db *DB) Path() string {
	return db.dbPath
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// WithTx executes a function within a transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction",
				"error", err.Error(),
				"rollback_error", rbErr.Error(),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithReadTx runs fn inside a transaction that is always rolled back. Every
// statement fn issues reads from the same snapshot.
func (db *DB) WithReadTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// ExecContext executes a query without returning rows
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// Checkpoint folds the WAL back into the main database file so a plain file
// copy captures every committed row. Outside WAL mode it is a no-op.
func (db *DB) Checkpoint(ctx context.Context) error {
	var busy, logFrames, checkpointed int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("wal checkpoint blocked by a concurrent reader or writer")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
