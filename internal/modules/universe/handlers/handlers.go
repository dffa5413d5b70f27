// Package handlers provides HTTP handlers for the instrument universe.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/universe"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// InstrumentLister reads known instruments
type InstrumentLister interface {
	List() ([]domain.Instrument, error)
	GetBySymbol(symbol string) (*domain.Instrument, error)
}

// QuoteResponse is the latest price for a symbol
type QuoteResponse struct {
	AsOf   time.Time `json:"as_of"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
}

// Handler handles instrument HTTP requests
type Handler struct {
	instruments  InstrumentLister
	prices       domain.PriceProvider
	priceTimeout time.Duration
	log          zerolog.Logger
}

// NewHandler creates a new instrument handler. prices may be nil, in which
// case quote lookups answer 503.
func NewHandler(instruments InstrumentLister, prices domain.PriceProvider, priceTimeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		instruments:  instruments,
		prices:       prices,
		priceTimeout: priceTimeout,
		log:          log.With().Str("handler", "universe").Logger(),
	}
}

// HandleList handles GET /api/instruments
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.instruments.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list instruments")
		http.Error(w, "Failed to list instruments", http.StatusInternalServerError)
		return
	}
	if instruments == nil {
		instruments = []domain.Instrument{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// HandleGet handles GET /api/instruments/{symbol}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbolParam(w, r)
	if !ok {
		return
	}

	instrument, err := h.instruments.GetBySymbol(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get instrument")
		http.Error(w, "Failed to get instrument", http.StatusInternalServerError)
		return
	}
	if instrument == nil {
		http.Error(w, "Instrument not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, instrument)
}

// HandleQuote handles GET /api/instruments/{symbol}/quote
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbolParam(w, r)
	if !ok {
		return
	}
	if h.prices == nil {
		http.Error(w, "No market data source configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.priceTimeout)
	defer cancel()

	price, err := h.prices.GetLatestPrice(ctx, symbol)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote lookup failed")
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, "Quote unavailable", status)
		return
	}

	h.writeJSON(w, http.StatusOK, QuoteResponse{AsOf: time.Now().UTC(), Symbol: symbol, Price: price})
}

func (h *Handler) symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol, err := universe.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		http.Error(w, "Invalid symbol", http.StatusBadRequest)
		return "", false
	}
	return symbol, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
