package settings

import (
	"errors"
	"fmt"
	"os"

	"github.com/aristath/tradeguard/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings is returned when an update would leave settings out of bounds
var ErrInvalidSettings = errors.New("invalid risk settings")

// Defaults overrides the built-in risk settings for accounts seen for the first time.
// Zero or missing fields keep the built-in value.
//
// Example file:
//
//	position_size_pct: 15
//	max_open_positions: 8
//	accounts:
//	  "51234567":
//	    paper_trading_enabled: false
type Defaults struct {
	Accounts map[string]Overrides `yaml:"accounts"`
	Overrides `yaml:",inline"`
}

// Overrides is a partial set of risk settings
type Overrides struct {
	PositionSizePct       *float64 `yaml:"position_size_pct"`
	StopLossPct           *float64 `yaml:"stop_loss_pct"`
	DailyLossLimitPct     *float64 `yaml:"daily_loss_limit_pct"`
	MinCashReservePct     *float64 `yaml:"min_cash_reserve_pct"`
	MinRiskRewardRatio    *float64 `yaml:"min_risk_reward_ratio"`
	MaxOpenPositions      *int     `yaml:"max_open_positions"`
	PaperTradingEnabled   *bool    `yaml:"paper_trading_enabled"`
	AutoTradingEnabled    *bool    `yaml:"auto_trading_enabled"`
	RequireStopLoss       *bool    `yaml:"require_stop_loss"`
	CircuitBreakerEnabled *bool    `yaml:"circuit_breaker_enabled"`
}

// LoadDefaults reads a YAML defaults file. An empty path returns empty defaults.
func LoadDefaults(path string) (Defaults, error) {
	if path == "" {
		return Defaults{}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("failed to read risk defaults file: %w", err)
	}

	return ParseDefaults(content)
}

// ParseDefaults parses YAML defaults and validates the resulting settings
func ParseDefaults(content []byte) (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(content, &d); err != nil {
		return Defaults{}, fmt.Errorf("failed to parse risk defaults: %w", err)
	}

	if err := Validate(d.For("")); err != nil {
		return Defaults{}, fmt.Errorf("invalid risk defaults: %w", err)
	}
	for account := range d.Accounts {
		if err := Validate(d.For(account)); err != nil {
			return Defaults{}, fmt.Errorf("invalid risk defaults for account %s: %w", account, err)
		}
	}

	return d, nil
}

// For returns the starting settings for an account
func (d Defaults) For(accountID string) domain.RiskSettings {
	s := domain.DefaultRiskSettings(accountID)
	d.Overrides.apply(&s)
	if o, ok := d.Accounts[accountID]; ok {
		o.apply(&s)
	}
	return s
}

func (o Overrides) apply(s *domain.RiskSettings) {
	if o.PositionSizePct != nil {
		s.PositionSizePct = *o.PositionSizePct
	}
	if o.StopLossPct != nil {
		s.StopLossPct = *o.StopLossPct
	}
	if o.DailyLossLimitPct != nil {
		s.DailyLossLimitPct = *o.DailyLossLimitPct
	}
	if o.MinCashReservePct != nil {
		s.MinCashReservePct = *o.MinCashReservePct
	}
	if o.MinRiskRewardRatio != nil {
		s.MinRiskRewardRatio = *o.MinRiskRewardRatio
	}
	if o.MaxOpenPositions != nil {
		s.MaxOpenPositions = *o.MaxOpenPositions
	}
	if o.PaperTradingEnabled != nil {
		s.PaperTradingEnabled = *o.PaperTradingEnabled
	}
	if o.AutoTradingEnabled != nil {
		s.AutoTradingEnabled = *o.AutoTradingEnabled
	}
	if o.RequireStopLoss != nil {
		s.RequireStopLoss = *o.RequireStopLoss
	}
	if o.CircuitBreakerEnabled != nil {
		s.CircuitBreakerEnabled = *o.CircuitBreakerEnabled
	}
}

// Validate checks that settings are within sane bounds
func Validate(s domain.RiskSettings) error {
	pcts := []struct {
		name  string
		value float64
	}{
		{"position_size_pct", s.PositionSizePct},
		{"stop_loss_pct", s.StopLossPct},
		{"daily_loss_limit_pct", s.DailyLossLimitPct},
	}
	for _, p := range pcts {
		if p.value <= 0 || p.value > 100 {
			return fmt.Errorf("%s must be in (0, 100], got %.2f", p.name, p.value)
		}
	}
	if s.MinCashReservePct < 0 || s.MinCashReservePct >= 100 {
		return fmt.Errorf("min_cash_reserve_pct must be in [0, 100), got %.2f", s.MinCashReservePct)
	}
	if s.MinRiskRewardRatio < 0 {
		return fmt.Errorf("min_risk_reward_ratio must not be negative, got %.2f", s.MinRiskRewardRatio)
	}
	if s.MaxOpenPositions < 1 {
		return fmt.Errorf("max_open_positions must be at least 1, got %d", s.MaxOpenPositions)
	}
	return nil
}
