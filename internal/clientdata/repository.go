// Package clientdata caches responses from external APIs in client_data.db.
// Each table maps a symbol to a msgpack blob and an expiry time.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Table names a cache table in client_data.db
type Table string

// Cache tables
const (
	TableCurrentPrices     Table = "current_prices"     // Resolved price per symbol (any source)
	TableAlphaVantageQuote Table = "alphavantage_quote" // Raw GLOBAL_QUOTE responses
	TableBrokerSymbols     Table = "broker_symbols"     // Ticker -> broker symbol id
)

// AllTables lists every cache table, in cleanup order
var AllTables = []Table{
	TableCurrentPrices,
	TableAlphaVantageQuote,
	TableBrokerSymbols,
}

// valid reports whether t is a known table. Table names are interpolated into
// SQL, so every query checks this first.
func (t Table) valid() bool {
	for _, known := range AllTables {
		if t == known {
			return true
		}
	}
	return false
}

// Repository reads and writes cache entries
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Store upserts an entry that expires after ttl
func (r *Repository) Store(table Table, symbol string, data interface{}, ttl time.Duration) error {
	if !table.valid() {
		return fmt.Errorf("invalid cache table: %s", table)
	}

	payload, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry for %s: %w", table, symbol, err)
	}

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO "+string(table)+" (symbol, data, expires_at) VALUES (?, ?, ?)",
		symbol, payload, r.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s entry for %s: %w", table, symbol, err)
	}
	return nil
}

// GetIfFresh decodes an unexpired entry into out. Returns false when the entry
// is missing or expired.
func (r *Repository) GetIfFresh(table Table, symbol string, out interface{}) (bool, error) {
	return r.get(table, symbol, out, true)
}

// Get decodes an entry into out even if it has expired.
// Only for data that stays valid past its TTL (broker symbol ids), never prices.
func (r *Repository) Get(table Table, symbol string, out interface{}) (bool, error) {
	return r.get(table, symbol, out, false)
}

func (r *Repository) get(table Table, symbol string, out interface{}, freshOnly bool) (bool, error) {
	if !table.valid() {
		return false, fmt.Errorf("invalid cache table: %s", table)
	}

	query := "SELECT data FROM " + string(table) + " WHERE symbol = ?"
	args := []interface{}{symbol}
	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, r.now().Unix())
	}

	var payload []byte
	err := r.db.QueryRow(query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s entry for %s: %w", table, symbol, err)
	}
	if err := msgpack.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to decode %s entry for %s: %w", table, symbol, err)
	}
	return true, nil
}

// DeleteExpired removes expired entries from one table
func (r *Repository) DeleteExpired(table Table) (int64, error) {
	if !table.valid() {
		return 0, fmt.Errorf("invalid cache table: %s", table)
	}

	result, err := r.db.Exec("DELETE FROM "+string(table)+" WHERE expires_at <= ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", table, err)
	}
	return result.RowsAffected()
}

// DeleteAllExpired purges every table and reports rows removed per table.
// It stops at the first failing table.
func (r *Repository) DeleteAllExpired() (map[Table]int64, error) {
	results := make(map[Table]int64, len(AllTables))
	for _, table := range AllTables {
		n, err := r.DeleteExpired(table)
		if err != nil {
			return results, err
		}
		results[table] = n
	}
	return results, nil
}
