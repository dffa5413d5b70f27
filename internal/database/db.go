// Package database opens and maintains the engine's SQLite databases.
//
// Two databases are used. ledger.db holds everything the risk checks and the
// position ledger read and write; client_data.db caches external API responses
// and can be deleted at any time.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schemas/*.sql
var schemas embed.FS

// Database names
const (
	NameLedger     = "ledger"
	NameClientData = "client_data"
)

// schema describes the embedded DDL for a named database.
// Bump version whenever the file changes.
type schema struct {
	file    string
	version int
}

var schemaRegistry = map[string]schema{
	NameLedger:     {file: "ledger_schema.sql", version: 1},
	NameClientData: {file: "client_data_schema.sql", version: 1},
}

// DatabaseProfile selects durability vs speed PRAGMAs
type DatabaseProfile string

const (
	// ProfileLedger fsyncs every commit. Orders and fills must survive power loss.
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileCache never fsyncs. Losing it only costs a refetch.
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard sits in between; used for scratch and test databases
	ProfileStandard DatabaseProfile = "standard"
)

// DB is an open SQLite database with its name and on-disk location
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config holds database configuration
type Config struct {
	Path    string // File path, or a file: URI for in-memory databases
	Profile DatabaseProfile
	Name    string // Selects the embedded schema; also used in logs and errors
}

// New opens a database and verifies the connection
func New(cfg Config) (*DB, error) {
	path, err := resolvePath(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}
	configurePool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: path, name: cfg.Name}, nil
}

// resolvePath makes file paths absolute and creates the parent directory.
// file: URIs pass through untouched.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return abs, nil
}

// buildConnectionString appends the driver's _pragma parameters for a profile
func buildConnectionString(path string, profile DatabaseProfile) string {
	pragmas := []string{"journal_mode(WAL)"}

	switch profile {
	case ProfileLedger:
		pragmas = append(pragmas, "synchronous(FULL)", "auto_vacuum(NONE)")
	case ProfileCache:
		pragmas = append(pragmas, "synchronous(OFF)", "auto_vacuum(FULL)", "temp_store(MEMORY)")
	default:
		pragmas = append(pragmas, "synchronous(NORMAL)", "auto_vacuum(INCREMENTAL)", "temp_store(MEMORY)")
	}

	pragmas = append(pragmas,
		"foreign_keys(1)",
		"busy_timeout(5000)", // Concurrent writers wait instead of failing with SQLITE_BUSY
		"wal_autocheckpoint(1000)",
		"cache_size(-32000)", // 32MB
	)

	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	// Write transactions take the lock at BEGIN so fill application never upgrades mid-transaction
	params = append(params, "_txlock=immediate")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

func configurePool(conn *sql.DB, profile DatabaseProfile) {
	if profile == ProfileCache {
		conn.SetMaxOpenConns(8)
		conn.SetMaxIdleConns(2)
	} else {
		conn.SetMaxOpenConns(16)
		conn.SetMaxIdleConns(4)
	}
	conn.SetConnMaxLifetime(12 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for repositories
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate applies the embedded schema and records its version in PRAGMA user_version.
// The DDL is idempotent, so Migrate runs on every start. Databases without a
// registered schema are left alone.
func (db *DB) Migrate() error {
	s, ok := schemaRegistry[db.name]
	if !ok {
		return nil
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	if current > s.version {
		return fmt.Errorf("%s schema version %d is newer than this build (%d)", db.name, current, s.version)
	}

	ddl, err := schemas.ReadFile("schemas/" + s.file)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", s.file, err)
	}

	err = WithTransaction(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(string(ddl)); err != nil {
			return err
		}
		// PRAGMA does not accept bound parameters
		_, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", s.version))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to apply schema %s to %s: %w", s.file, db.name, err)
	}
	return nil
}

// SchemaVersion returns the recorded schema version (0 if never migrated)
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version for %s: %w", db.name, err)
	}
	return v, nil
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
