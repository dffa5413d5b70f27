package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, table string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestMigrate_Ledger(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)

	require.NoError(t, db.Migrate())
	// Idempotent
	require.NoError(t, db.Migrate())

	for _, table := range []string{"instruments", "risk_settings", "portfolio_snapshots", "positions", "orders", "executions", "broker_tokens"} {
		assert.True(t, tableExists(t, db, table), "missing table %s", table)
	}
}

func TestMigrate_ClientData(t *testing.T) {
	db := newTestDB(t, NameClientData, ProfileCache)

	require.NoError(t, db.Migrate())

	for _, table := range []string{"current_prices", "alphavantage_quote", "broker_symbols"} {
		assert.True(t, tableExists(t, db, table), "missing table %s", table)
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestMigrate_RecordsSchemaVersion(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, db.Migrate())
	v, err = db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaRegistry[NameLedger].version, v)
}

func TestMigrate_RefusesNewerSchema(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	_, err := db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)

	err = db.Migrate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this build")
}

func TestPositions_OneOpenPerInstrument(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	now := time.Now().Unix()
	_, err := db.Exec(`INSERT INTO instruments (symbol, created_at) VALUES ('SHOP', ?)`, now)
	require.NoError(t, err)

	insert := `INSERT INTO positions (account_id, instrument_id, symbol, quantity, is_open, updated_at) VALUES ('A1', 1, 'SHOP', ?, ?, ?)`

	_, err = db.Exec(insert, 10, 1, now)
	require.NoError(t, err)

	_, err = db.Exec(insert, 5, 1, now)
	assert.Error(t, err, "second open position for the same instrument must be rejected")

	// Closed history rows are unrestricted
	_, err = db.Exec(insert, 0, 0, now)
	assert.NoError(t, err)
	_, err = db.Exec(insert, 0, 0, now)
	assert.NoError(t, err)
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO instruments (symbol, created_at) VALUES ('RY', 1)`)
			return err
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM instruments WHERE symbol = 'RY'`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec(`INSERT INTO instruments (symbol, created_at) VALUES ('TD', 1)`); err != nil {
				return err
			}
			return boom
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM instruments WHERE symbol = 'TD'`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec(`INSERT INTO instruments (symbol, created_at) VALUES ('BNS', 1)`); err != nil {
				return err
			}
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM instruments WHERE symbol = 'BNS'`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("nil connection", func(t *testing.T) {
		err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
		assert.Error(t, err)
	})
}

func TestHealthAndMaintenance(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	ctx := context.Background()
	assert.NoError(t, db.HealthCheck(ctx))
	assert.NoError(t, db.QuickCheck(ctx))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))
	assert.Error(t, db.WALCheckpoint("TRUNCATE; DROP TABLE orders"))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestVacuumInto(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	_, err := db.Exec(`INSERT INTO instruments (symbol, created_at) VALUES ('ENB', 1)`)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, db.VacuumInto(dest))
	// Overwrites an existing copy
	require.NoError(t, db.VacuumInto(dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	copyDB, err := New(Config{Path: dest, Profile: ProfileStandard, Name: "copy"})
	require.NoError(t, err)
	defer copyDB.Close()

	var symbol string
	require.NoError(t, copyDB.QueryRow(`SELECT symbol FROM instruments`).Scan(&symbol))
	assert.Equal(t, "ENB", symbol)
}

func TestBuildConnectionString(t *testing.T) {
	assert.Contains(t, buildConnectionString("/tmp/a.db", ProfileLedger), "/tmp/a.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, buildConnectionString("/tmp/a.db", ProfileLedger), "synchronous(FULL)")
	assert.Contains(t, buildConnectionString("/tmp/a.db", ProfileCache), "synchronous(OFF)")
	assert.Contains(t, buildConnectionString("/tmp/a.db", ProfileStandard), "_txlock=immediate")
	assert.Contains(t, buildConnectionString("file:x?mode=memory", ProfileStandard), "file:x?mode=memory&_pragma=journal_mode(WAL)")
}
