package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. ledger.db - Orders, fills, positions and everything the risk checks read
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger, // Maximum safety for the audit trail
		Name:    database.NameLedger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// 2. client_data.db - Quote and symbol cache
	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache, // Maximum speed for cache data
		Name:    database.NameClientData,
	})
	if err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to initialize client_data database: %w", err)
	}
	container.ClientDataDB = clientDataDB

	for _, db := range []*database.DB{ledgerDB, clientDataDB} {
		if err := db.Migrate(); err != nil {
			ledgerDB.Close()
			clientDataDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
