// Package dataset stores labelled training samples and training run history in SQLite.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultFileName is the database file created under the data directory.
const DefaultFileName = "training.db"

// DB is the SQLite connection plus the prepared statements used on hot paths.
type DB struct {
	*sql.DB
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// Open creates dataDir if needed and opens (or creates) the dataset database in it.
func Open(ctx context.Context, dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenFile(ctx, filepath.Join(dataDir, DefaultFileName))
}

// OpenFile opens the database at path and runs migrations.
func OpenFile(ctx context.Context, path string) (*DB, error) {
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path)

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one writer avoids SQLITE_BUSY under WAL
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	db := &DB{DB: sqlDB, prepared: make(map[string]*sql.Stmt)}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := db.prepare(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Debug("Dataset database opened", "path", path)
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS training_samples (
			id TEXT PRIMARY KEY,
			feature_count INTEGER NOT NULL,
			features TEXT NOT NULL, -- JSON array of floats
			label INTEGER NOT NULL CHECK (label IN (0, 1)),
			target_probability REAL NOT NULL CHECK (target_probability BETWEEN 0 AND 1),
			source TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			architecture TEXT NOT NULL,
			epochs INTEGER NOT NULL,
			stopped_early BOOLEAN NOT NULL,
			final_loss REAL NOT NULL,
			train_accuracy REAL NOT NULL,
			validation_accuracy REAL,
			training_samples INTEGER NOT NULL,
			snapshot_path TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_samples_size ON training_samples(feature_count)`,
		`CREATE INDEX IF NOT EXISTS idx_training_samples_source ON training_samples(source)`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_created ON training_runs(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (db *DB) prepare(ctx context.Context) error {
	statements := map[string]string{
		stmtInsertSample: `INSERT INTO training_samples (id, feature_count, features, label, target_probability, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stmtInsertRun: `INSERT INTO training_runs (
			id, architecture, epochs, stopped_early, final_loss, train_accuracy,
			validation_accuracy, training_samples, snapshot_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}
	return nil
}

func (db *DB) statement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, ok := db.prepared[name]
	if !ok {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

// Close closes prepared statements and the connection.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)
	return db.DB.Close()
}
