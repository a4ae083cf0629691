package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS purchases (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					purchase_date DATETIME NOT NULL,
					vendor TEXT NOT NULL,
					crypto_symbol TEXT NOT NULL,
					crypto_amount TEXT NOT NULL,
					fiat_amount TEXT NOT NULL,
					fiat_currency TEXT NOT NULL,
					fee_amount TEXT,
					fee_currency TEXT,
					transaction_id TEXT,
					transaction_type TEXT NOT NULL,
					source TEXT NOT NULL,
					provider TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					message_id TEXT,
					email_source TEXT,
					validation_mode TEXT NOT NULL,
					warnings TEXT,
					reward INTEGER NOT NULL DEFAULT 0,
					run_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_purchases_date ON purchases(purchase_date)`,
				`CREATE INDEX idx_purchases_vendor ON purchases(vendor)`,
				`CREATE INDEX idx_purchases_symbol ON purchases(crypto_symbol)`,

				`CREATE TABLE IF NOT EXISTS processed_emails (
					message_id TEXT PRIMARY KEY,
					state TEXT NOT NULL,
					reason TEXT,
					run_id TEXT,
					processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add batch run history",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS batch_runs (
					id TEXT PRIMARY KEY,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL,
					emails_total INTEGER NOT NULL DEFAULT 0,
					accepted INTEGER NOT NULL DEFAULT 0,
					rejected INTEGER NOT NULL DEFAULT 0,
					filtered INTEGER NOT NULL DEFAULT 0,
					duplicates INTEGER NOT NULL DEFAULT 0,
					metrics TEXT
				)`,
				`CREATE INDEX idx_batch_runs_started ON batch_runs(started_at)`,
				`CREATE INDEX IF NOT EXISTS idx_purchases_run ON purchases(run_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies pending migrations in order, each in its own transaction.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if currentVersion > ExpectedSchemaVersion {
		return fmt.Errorf("%w: schema version %d is newer than supported version %d",
			ErrSchemaTooNew, currentVersion, ExpectedSchemaVersion)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
