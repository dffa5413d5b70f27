package database

import (
	"context"
	"fmt"
	"os"
)

// HealthCheck pings the database and runs PRAGMA integrity_check.
// Expensive on large files; the nightly integrity job uses it.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, result)
	}
	return nil
}

// QuickCheck only pings the database
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WALCheckpoint runs PRAGMA wal_checkpoint. mode is PASSIVE, FULL, RESTART or
// TRUNCATE (the default).
func (db *DB) WALCheckpoint(mode string) error {
	switch mode {
	case "":
		mode = "TRUNCATE"
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		return fmt.Errorf("invalid checkpoint mode %q", mode)
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(" + mode + ")"); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Vacuum rebuilds the database file to reclaim free pages
func (db *DB) Vacuum() error {
	if _, err := db.conn.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed for %s: %w", db.name, err)
	}
	return nil
}

// VacuumInto writes a consistent copy of the live database to destPath,
// replacing any existing file there.
func (db *DB) VacuumInto(destPath string) error {
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file %s: %w", destPath, err)
	}
	if _, err := db.conn.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats describes the on-disk footprint of a database
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// GetStats reads file sizes and page counters
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}

	for pragma, dest := range map[string]*int64{
		"page_count":     &stats.PageCount,
		"page_size":      &stats.PageSize,
		"freelist_count": &stats.FreelistCount,
	} {
		if err := db.conn.QueryRow("PRAGMA " + pragma).Scan(dest); err != nil {
			return nil, fmt.Errorf("failed to read %s for %s: %w", pragma, db.name, err)
		}
	}
	return stats, nil
}
