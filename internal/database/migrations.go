package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/neo/rapport_backend/internal/logging"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the migrations shipped with the binary
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration represents a database migration
type Migration struct {
	ID   int
	Name string
	SQL  string
}

// MigrationRecord represents a record of a migration that has been applied
type MigrationRecord struct {
	ID        int
	Name      string
	AppliedAt time.Time
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{
		db: db,
	}
}

// Initialize creates the migrations table if it doesn't exist
func (m *MigrationManager) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := m.db.Exec(query)
	return err
}

// LoadMigrations reads NNN_name.sql files from the root of fsys, ordered by ID
func (m *MigrationManager) LoadMigrations(fsys fs.FS) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(file.Name(), "_", 2)
		if len(parts) != 2 {
			logging.Warn("Skipping migration file with invalid name format", map[string]interface{}{"file": file.Name()})
			continue
		}

		id := 0
		if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil {
			logging.Warn("Skipping migration file with invalid ID", map[string]interface{}{"file": file.Name()})
			continue
		}

		content, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			ID:   id,
			Name: strings.TrimSuffix(parts[1], ".sql"),
			SQL:  string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})

	return migrations, nil
}

// GetAppliedMigrations returns a list of migrations that have been applied
func (m *MigrationManager) GetAppliedMigrations() ([]MigrationRecord, error) {
	rows, err := m.db.Query("SELECT id, name, applied_at FROM migrations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []MigrationRecord
	for rows.Next() {
		var migration MigrationRecord
		if err := rows.Scan(&migration.ID, &migration.Name, &migration.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		migrations = append(migrations, migration)
	}

	return migrations, rows.Err()
}

// ApplyMigration applies a single migration in a transaction
func (m *MigrationManager) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to apply migration %d_%s: %w", migration.ID, migration.Name, err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (id, name) VALUES (?, ?)", migration.ID, migration.Name); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d_%s: %w", migration.ID, migration.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Pending returns the migrations in fsys that have not been applied yet
func (m *MigrationManager) Pending(fsys fs.FS) ([]Migration, error) {
	if err := m.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	migrations, err := m.LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	appliedMap := make(map[int]bool, len(applied))
	for _, migration := range applied {
		appliedMap[migration.ID] = true
	}

	var pending []Migration
	for _, migration := range migrations {
		if !appliedMap[migration.ID] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// MigrateUp applies all pending migrations and returns how many ran
func (m *MigrationManager) MigrateUp(fsys fs.FS) (int, error) {
	pending, err := m.Pending(fsys)
	if err != nil {
		return 0, err
	}

	for i, migration := range pending {
		logging.LogDatabaseEvent("migrate", "migrations", map[string]interface{}{
			"id":   migration.ID,
			"name": migration.Name,
		})
		if err := m.ApplyMigration(migration); err != nil {
			return i, err
		}
	}

	return len(pending), nil
}
