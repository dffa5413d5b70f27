package trading

import (
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// PaperExecutor simulates execution: one fill for the full quantity at the resolved
// price with zero commission
type PaperExecutor struct {
	fills *FillStore
	log   zerolog.Logger
}

// NewPaperExecutor creates a paper executor
func NewPaperExecutor(fills *FillStore, log zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		fills: fills,
		log:   log.With().Str("component", "paper_executor").Logger(),
	}
}

// Execute fills a pending paper order. The caller holds the position lock.
func (e *PaperExecutor) Execute(order *domain.Order, price float64, now time.Time) (*FillOutcome, error) {
	outcome, err := e.fills.RecordFill(order.ID, domain.Fill{
		ExecutedAt: now,
		Quantity:   order.Quantity,
		Price:      price,
	}, now)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Float64("price", price).
		Msg("Paper trade executed")
	return outcome, nil
}
