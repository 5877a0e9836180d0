package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered schema history. New changes append a higher
// version; applied versions are never edited.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				file_name TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				category TEXT NOT NULL,
				content BLOB NOT NULL,
				status TEXT NOT NULL DEFAULT 'UPLOADED',
				uploaded_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS extraction_results (
				document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
				sales_vat TEXT NOT NULL,
				purchase_vat TEXT NOT NULL,
				total_amount REAL,
				vat_rate REAL,
				confidence REAL NOT NULL,
				document_type TEXT NOT NULL,
				processing_method TEXT NOT NULL,
				validation_flags TEXT NOT NULL,
				irish_vat_compliant INTEGER NOT NULL,
				had_errors INTEGER NOT NULL,
				recovery_method TEXT NOT NULL DEFAULT '',
				fallbacks_used TEXT NOT NULL,
				processed_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS processing_steps (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				step TEXT NOT NULL,
				success INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				detail TEXT NOT NULL DEFAULT '',
				fallback_used INTEGER NOT NULL,
				timestamp DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
			CREATE INDEX IF NOT EXISTS idx_processing_steps_document ON processing_steps(document_id);
		`,
	},
}

// Migrator applies pending schema migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// Run applies all pending migrations in version order
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		m.logger.Info("Applying migration",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name))

		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	m.logger.Info("Database migrations completed")
	return nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, migration Migration) error {
	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(migration.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		_, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}

		return nil
	})
}
