package migration

import (
	"context"

	"bootfit/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

var _ Migrator = (*MigrationRunner)(nil)

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL in execution order.
func (r *MigrationRunner) Statements() []string {
	return []string{createResultsTable, addResultsSummaryColumns, createResultsIndexes}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, createResultsTable); err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to create bootstrap_results table")
	}

	if _, err := db.ExecContext(ctx, addResultsSummaryColumns); err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to add bootstrap_results columns")
	}

	if _, err := db.ExecContext(ctx, createResultsIndexes); err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to create indexes")
	}

	return nil
}

const createResultsTable = `
	CREATE TABLE IF NOT EXISTS bootstrap_results (
		id UUID PRIMARY KEY,
		model_name VARCHAR(255) NOT NULL DEFAULT '',
		num_iteration INTEGER NOT NULL,
		error_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		blob BYTEA NOT NULL
	)
`

// Columns added after 1.0.0.
const addResultsSummaryColumns = `
	DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'bootstrap_results' AND column_name = 'rejected'
		) THEN
			ALTER TABLE bootstrap_results ADD COLUMN rejected INTEGER NOT NULL DEFAULT 0;
		END IF;

		IF NOT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'bootstrap_results' AND column_name = 'partial'
		) THEN
			ALTER TABLE bootstrap_results ADD COLUMN partial BOOLEAN NOT NULL DEFAULT false;
		END IF;

		IF NOT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'bootstrap_results' AND column_name = 'fingerprint'
		) THEN
			ALTER TABLE bootstrap_results ADD COLUMN fingerprint VARCHAR(64) NOT NULL DEFAULT '';
		END IF;
	END $$;
`

const createResultsIndexes = `
	CREATE INDEX IF NOT EXISTS idx_bootstrap_results_created_at ON bootstrap_results(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_bootstrap_results_model_name ON bootstrap_results(model_name);
`
