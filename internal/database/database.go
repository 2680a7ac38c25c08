package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/neo/rapport_backend/internal/logging"
)

// FileName is the archive database file inside the data directory
const FileName = "rapport.db"

// Database is the SQLite archive of finished conversations
type Database struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the archive in dataDir and applies any pending migrations
func New(dataDir string) (*Database, error) {
	d, err := Open(dataDir)
	if err != nil {
		return nil, err
	}
	if err := d.RunMigrations(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Open opens (creating if needed) the archive in dataDir without migrating it
func Open(dataDir string) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logging.LogDatabaseEvent("open", "", map[string]interface{}{"path": dbPath})
	return &Database{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrator returns a migration manager for this database
func (d *Database) Migrator() *MigrationManager {
	return NewMigrationManager(d.db)
}

// RunMigrations applies the embedded migrations
func (d *Database) RunMigrations() error {
	_, err := d.Migrator().MigrateUp(Migrations())
	return err
}
