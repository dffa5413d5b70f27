package questrade

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
)

// Provider is the broker_tokens key for Questrade credentials
const Provider = "questrade"

// Token is an OAuth credential set for the API
type Token struct {
	ExpiresAt    time.Time
	AccessToken  string
	RefreshToken string
	APIServer    string
}

// Valid reports whether the access token can still be used at now
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && t.APIServer != "" && now.Before(t.ExpiresAt)
}

// TokenStore persists OAuth tokens across restarts.
// Questrade refresh tokens are single use, so every refresh must be saved.
type TokenStore interface {
	Load() (*Token, error)
	Save(token *Token) error
}

// TokenRepository stores tokens in the ledger's broker_tokens table
type TokenRepository struct {
	db       *sql.DB
	provider string
	log      zerolog.Logger
}

// NewTokenRepository creates a token repository for the Questrade provider
func NewTokenRepository(db *sql.DB, log zerolog.Logger) *TokenRepository {
	return &TokenRepository{
		db:       db,
		provider: Provider,
		log:      log.With().Str("repo", "broker_tokens").Logger(),
	}
}

// Load returns the stored token, or nil if none was saved
func (r *TokenRepository) Load() (*Token, error) {
	var t Token
	var expiresAt int64
	err := r.db.QueryRow(`SELECT access_token, refresh_token, api_server, expires_at
		FROM broker_tokens WHERE provider = ?`, r.provider).Scan(
		&t.AccessToken,
		&t.RefreshToken,
		&t.APIServer,
		&expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load broker token: %w", err)
	}
	t.ExpiresAt = database.FromUnix(expiresAt)
	return &t, nil
}

// Save upserts the token
func (r *TokenRepository) Save(token *Token) error {
	_, err := r.db.Exec(`INSERT INTO broker_tokens
		(provider, access_token, refresh_token, api_server, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			api_server = excluded.api_server,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		r.provider,
		token.AccessToken,
		token.RefreshToken,
		token.APIServer,
		token.ExpiresAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save broker token: %w", err)
	}
	r.log.Debug().Time("expires_at", token.ExpiresAt).Msg("Broker token saved")
	return nil
}
