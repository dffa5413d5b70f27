package risk

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable rejection cause. Each check has its own reason.
type Reason string

const (
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonSnapshotUnavailable Reason = "snapshot_unavailable"
	ReasonSnapshotStale       Reason = "snapshot_stale"
	ReasonCircuitBreaker      Reason = "circuit_breaker"
	ReasonMaxPositions        Reason = "max_positions"
	ReasonPortfolioValueZero  Reason = "portfolio_value_zero"
	ReasonPositionSize        Reason = "position_size_exceeded"
	ReasonNoOpenPosition      Reason = "no_open_position"
	ReasonInsufficientShares  Reason = "insufficient_shares"
	ReasonInsufficientCash    Reason = "insufficient_cash"
	ReasonStopLossRequired    Reason = "stop_loss_required"
	ReasonStopLossTooTight    Reason = "stop_loss_too_tight"
	ReasonStopLossTooWide     Reason = "stop_loss_too_wide"
	ReasonZeroRisk            Reason = "zero_risk"
	ReasonRiskReward          Reason = "risk_reward_below_minimum"
)

// Rejection is the typed result of a failed validation.
// It is recoverable by adjusting the request and is never retried automatically.
type Rejection struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk rejection (%s): %s", r.Reason, r.Message)
}

func reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from err
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsRejection reports whether err is a risk rejection with the given reason
func IsRejection(err error, reason Reason) bool {
	r, ok := AsRejection(err)
	return ok && r.Reason == reason
}
