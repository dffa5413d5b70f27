package universe

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultExchange is assigned to instruments created on first reference
const DefaultExchange = "TSX"

const instrumentColumns = `id, symbol, name, exchange, created_at`

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,19}$`)

// NormalizeSymbol upper-cases and trims a ticker and checks its shape
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: invalid symbol %q", domain.ErrInvalidOrder, symbol)
	}
	return s, nil
}

// InstrumentRepository handles instrument database operations (ledger.db)
type InstrumentRepository struct {
	ledgerDB        *sql.DB
	defaultExchange string
	log             zerolog.Logger
}

var _ domain.InstrumentResolver = (*InstrumentRepository)(nil)

// NewInstrumentRepository creates a new instrument repository.
// An empty defaultExchange falls back to DefaultExchange.
func NewInstrumentRepository(ledgerDB *sql.DB, defaultExchange string, log zerolog.Logger) *InstrumentRepository {
	if defaultExchange == "" {
		defaultExchange = DefaultExchange
	}
	return &InstrumentRepository{
		ledgerDB:        ledgerDB,
		defaultExchange: defaultExchange,
		log:             log.With().Str("repo", "instrument").Logger(),
	}
}

// GetBySymbol returns an instrument by symbol, or nil if not found
func (r *InstrumentRepository) GetBySymbol(symbol string) (*domain.Instrument, error) {
	s, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	inst, err := scanInstrument(r.ledgerDB.QueryRow("SELECT "+instrumentColumns+" FROM instruments WHERE symbol = ?", s))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %s: %w", s, err)
	}
	return inst, nil
}

// GetByID returns an instrument by id, or nil if not found
func (r *InstrumentRepository) GetByID(id int64) (*domain.Instrument, error) {
	inst, err := scanInstrument(r.ledgerDB.QueryRow("SELECT "+instrumentColumns+" FROM instruments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %d: %w", id, err)
	}
	return inst, nil
}

// GetOrCreate returns the instrument for symbol, creating it on the default exchange
// when it does not exist yet. Safe to call concurrently for the same symbol.
func (r *InstrumentRepository) GetOrCreate(symbol string) (*domain.Instrument, error) {
	existing, err := r.GetBySymbol(symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	s, _ := NormalizeSymbol(symbol)
	result, err := r.ledgerDB.Exec(
		"INSERT OR IGNORE INTO instruments (symbol, name, exchange, created_at) VALUES (?, ?, ?, ?)",
		s, s, r.defaultExchange, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument %s: %w", s, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		r.log.Info().Str("symbol", s).Str("exchange", r.defaultExchange).Msg("Created instrument")
	}

	created, err := r.GetBySymbol(s)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("instrument %s not found after create", s)
	}
	return created, nil
}

// List returns all instruments ordered by symbol
func (r *InstrumentRepository) List() ([]domain.Instrument, error) {
	rows, err := r.ledgerDB.Query("SELECT " + instrumentColumns + " FROM instruments ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}
	return instruments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (*domain.Instrument, error) {
	var inst domain.Instrument
	var createdAt int64
	if err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Exchange, &createdAt); err != nil {
		return nil, err
	}
	inst.CreatedAt = database.FromUnix(createdAt)
	return &inst, nil
}
