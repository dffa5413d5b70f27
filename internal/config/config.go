// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases (always absolute)
	LogLevel         string
	LogFile          string // Optional rotating log file
	RiskDefaultsFile string // Optional YAML file overriding built-in risk settings
	Port             int
	DevMode          bool

	SnapshotPolicy      risk.SnapshotPolicy
	BrokerTimeout       time.Duration
	MonitorPriceTimeout time.Duration
	MarketPriceTimeout  time.Duration

	AlphaVantage AlphaVantageConfig
	Questrade    QuestradeConfig
	Backup       BackupConfig
	Schedules    ScheduleConfig
}

// AlphaVantageConfig holds market data API settings
type AlphaVantageConfig struct {
	APIKey     string
	BaseURL    string
	DailyLimit int
}

// QuestradeConfig holds broker API settings
type QuestradeConfig struct {
	LoginURL          string
	RefreshToken      string
	RequestsPerSecond float64
}

// Enabled reports whether live trading credentials are configured
func (c QuestradeConfig) Enabled() bool {
	return c.RefreshToken != ""
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, MinIO)
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	RetentionDays   int
}

// Enabled reports whether backups have a destination
func (c BackupConfig) Enabled() bool {
	return c.Bucket != ""
}

// ScheduleConfig holds cron expressions (with seconds) for background jobs
type ScheduleConfig struct {
	Monitor          string
	LiveOrderSync    string
	SnapshotRollover string
	WALCheckpoint    string
	IntegrityCheck   string
	CacheCleanup     string
	Backup           string
	Vacuum           string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADEGUARD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	policy, err := risk.ParseSnapshotPolicy(strings.ToLower(getEnv("RISK_SNAPSHOT_POLICY", "")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:          absDataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		RiskDefaultsFile: getEnv("RISK_DEFAULTS_FILE", ""),
		Port:             getEnvAsInt("PORT", 8080),
		DevMode:          getEnvAsBool("DEV_MODE", false),

		SnapshotPolicy:      policy,
		BrokerTimeout:       getEnvAsDuration("BROKER_TIMEOUT", 15*time.Second),
		MonitorPriceTimeout: getEnvAsDuration("MONITOR_PRICE_TIMEOUT", 10*time.Second),
		MarketPriceTimeout:  getEnvAsDuration("MARKET_PRICE_TIMEOUT", 10*time.Second),

		AlphaVantage: AlphaVantageConfig{
			APIKey:     getEnv("ALPHA_VANTAGE_API_KEY", ""),
			BaseURL:    getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co"),
			DailyLimit: getEnvAsInt("ALPHA_VANTAGE_DAILY_LIMIT", 25),
		},
		Questrade: QuestradeConfig{
			LoginURL:          getEnv("QUESTRADE_LOGIN_URL", "https://login.questrade.com"),
			RefreshToken:      getEnv("QUESTRADE_REFRESH_TOKEN", ""),
			RequestsPerSecond: getEnvAsFloat("QUESTRADE_REQUESTS_PER_SECOND", 20),
		},
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "tradeguard"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
		Schedules: ScheduleConfig{
			Monitor:          getEnv("SCHEDULE_MONITOR", "0 */1 * * * *"),
			LiveOrderSync:    getEnv("SCHEDULE_LIVE_ORDER_SYNC", "*/30 * * * * *"),
			SnapshotRollover: getEnv("SCHEDULE_SNAPSHOT_ROLLOVER", "0 5 16 * * MON-FRI"),
			WALCheckpoint:    getEnv("SCHEDULE_WAL_CHECKPOINT", "0 */15 * * * *"),
			IntegrityCheck:   getEnv("SCHEDULE_INTEGRITY_CHECK", "0 30 3 * * *"),
			CacheCleanup:     getEnv("SCHEDULE_CACHE_CLEANUP", "0 0 4 * * *"),
			Backup:           getEnv("SCHEDULE_BACKUP", "0 0 2 * * *"),
			Vacuum:           getEnv("SCHEDULE_VACUUM", "0 0 3 * * SUN"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BrokerTimeout <= 0 {
		return fmt.Errorf("BROKER_TIMEOUT must be positive")
	}
	if c.MonitorPriceTimeout <= 0 {
		return fmt.Errorf("MONITOR_PRICE_TIMEOUT must be positive")
	}
	if c.MarketPriceTimeout <= 0 {
		return fmt.Errorf("MARKET_PRICE_TIMEOUT must be positive")
	}
	if c.Backup.Enabled() && c.Backup.RetentionDays <= 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
