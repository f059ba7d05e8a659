package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBPath returns the default location of the actor database.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".actingweb", "actingweb.db"), nil
}

// OpenSQLite opens a SQLite database with WAL mode, foreign keys, and a busy
// timeout enabled. The connection pool is restricted to a single connection as
// SQLite only supports one writer at a time.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}

// configurePragmas applies the runtime pragmas that aren't covered by the DSN.
func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		// NORMAL is durable enough under WAL and much faster than
		// FULL.
		"PRAGMA synchronous = NORMAL",

		// Negative cache_size is in KiB, so this is a 64 MB page
		// cache.
		"PRAGMA cache_size = -65536",

		// 256 MB of memory-mapped I/O for reads.
		"PRAGMA mmap_size = 268435456",

		// Keep temporary tables in memory.
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// MigrateUp brings the database schema up to the latest migration version.
func MigrateUp(db *sql.DB, log *slog.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	return applyMigrations(
		sqlSchemas, driver, "migrations", "actingweb", TargetLatest,
		defaultMigrateOptions(), log,
	)
}
