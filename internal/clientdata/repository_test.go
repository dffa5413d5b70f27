package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const testSchema = `
CREATE TABLE current_prices (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE alphavantage_quote (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE broker_symbols (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
`

type cachedQuote struct {
	Symbol string  `msgpack:"symbol"`
	Price  float64 `msgpack:"price"`
	Volume int64   `msgpack:"volume"`
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	err := repo.Store(TableAlphaVantageQuote, "SHOP", cachedQuote{Symbol: "SHOP", Price: 150.25, Volume: 1200}, TTLQuote)
	require.NoError(t, err)

	var payload []byte
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM alphavantage_quote WHERE symbol = ?", "SHOP").Scan(&payload, &expiresAt)
	require.NoError(t, err)

	var decoded cachedQuote
	require.NoError(t, msgpack.Unmarshal(payload, &decoded))
	assert.Equal(t, 150.25, decoded.Price)
	assert.InDelta(t, time.Now().Add(TTLQuote).Unix(), expiresAt, 2)
}

func TestStore_Upsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TableCurrentPrices, "RY", 100.0, time.Minute))
	require.NoError(t, repo.Store(TableCurrentPrices, "RY", 101.5, time.Minute))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM current_prices").Scan(&count))
	assert.Equal(t, 1, count)

	var price float64
	found, err := repo.GetIfFresh(TableCurrentPrices, "RY", &price)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 101.5, price)
}

func TestGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TableAlphaVantageQuote, "FRESH", cachedQuote{Symbol: "FRESH", Price: 10}, time.Hour))
	require.NoError(t, repo.Store(TableAlphaVantageQuote, "STALE", cachedQuote{Symbol: "STALE", Price: 20}, -time.Hour))

	t.Run("fresh entry", func(t *testing.T) {
		var q cachedQuote
		found, err := repo.GetIfFresh(TableAlphaVantageQuote, "FRESH", &q)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "FRESH", q.Symbol)
	})

	t.Run("expired entry", func(t *testing.T) {
		var q cachedQuote
		found, err := repo.GetIfFresh(TableAlphaVantageQuote, "STALE", &q)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("missing entry", func(t *testing.T) {
		var q cachedQuote
		found, err := repo.GetIfFresh(TableAlphaVantageQuote, "NONE", &q)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestExpiryUsesClock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Store(TableCurrentPrices, "SHOP", 150.0, time.Minute))

	var price float64
	repo.now = func() time.Time { return base.Add(59 * time.Second) }
	found, err := repo.GetIfFresh(TableCurrentPrices, "SHOP", &price)
	require.NoError(t, err)
	assert.True(t, found)

	repo.now = func() time.Time { return base.Add(time.Minute) }
	found, err = repo.GetIfFresh(TableCurrentPrices, "SHOP", &price)
	require.NoError(t, err)
	assert.False(t, found)

	deleted, err := repo.DeleteExpired(TableCurrentPrices)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestGet_ReturnsStaleData(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TableBrokerSymbols, "SHOP", int64(38738), -time.Hour))

	var id int64
	found, err := repo.Get(TableBrokerSymbols, "SHOP", &id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(38738), id)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TableCurrentPrices, "A", 1.0, -time.Hour))
	require.NoError(t, repo.Store(TableCurrentPrices, "B", 2.0, -time.Minute))
	require.NoError(t, repo.Store(TableCurrentPrices, "C", 3.0, time.Hour))

	deleted, err := repo.DeleteExpired(TableCurrentPrices)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var price float64
	found, err := repo.Get(TableCurrentPrices, "C", &price)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	var out interface{}

	assert.Error(t, repo.Store(Table("positions; DROP TABLE orders"), "X", 1, time.Hour))
	_, err := repo.GetIfFresh(Table("unknown"), "X", &out)
	assert.Error(t, err)
	_, err = repo.Get(Table("unknown"), "X", &out)
	assert.Error(t, err)
	_, err = repo.DeleteExpired(Table("unknown"))
	assert.Error(t, err)
}
