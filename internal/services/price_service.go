// Package services holds cross-module services assembled from clients and repositories.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/tradeguard/internal/clientdata"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// QuoteSource returns the latest traded price for a symbol
type QuoteSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// BrokerQuoter is the quote capability of the broker
type BrokerQuoter interface {
	GetQuote(ctx context.Context, symbol string) (*domain.BrokerQuote, error)
}

// PriceService provides latest prices with fallback:
// 1. Fresh current_prices cache entry
// 2. Market data API (Alpha Vantage)
// 3. Broker quote
//
// A stale cached price is never returned; when every source fails the
// caller gets a MarketDataUnavailableError.
type PriceService struct {
	marketData QuoteSource
	broker     BrokerQuoter
	cache      *clientdata.Repository
	log        zerolog.Logger
}

var _ domain.PriceProvider = (*PriceService)(nil)

// NewPriceService creates a new price service. Any source may be nil.
func NewPriceService(marketData QuoteSource, broker BrokerQuoter, cache *clientdata.Repository, log zerolog.Logger) *PriceService {
	return &PriceService{
		marketData: marketData,
		broker:     broker,
		cache:      cache,
		log:        log.With().Str("service", "price").Logger(),
	}
}

// GetLatestPrice returns the latest positive price for symbol
func (s *PriceService) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, &domain.MarketDataUnavailableError{Err: errors.New("symbol is required")}
	}

	if s.cache != nil {
		var cached float64
		found, err := s.cache.GetIfFresh(clientdata.TableCurrentPrices, symbol, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price cache read failed")
		} else if found && cached > 0 {
			return cached, nil
		}
	}

	var errs []error

	if s.marketData != nil {
		price, err := s.marketData.GetLatestPrice(ctx, symbol)
		if err == nil && price > 0 {
			s.remember(symbol, price, "alphavantage")
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %v", price)
		}
		errs = append(errs, fmt.Errorf("market data: %w", err))
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Market data price failed, trying broker quote")
	}

	if ctx.Err() != nil {
		return 0, &domain.MarketDataUnavailableError{Symbol: symbol, Err: ctx.Err()}
	}

	if s.broker != nil {
		quote, err := s.broker.GetQuote(ctx, symbol)
		if err == nil && quote != nil && quote.Price > 0 {
			s.remember(symbol, quote.Price, "broker")
			return quote.Price, nil
		}
		if err == nil {
			err = errors.New("broker returned no price")
		}
		errs = append(errs, fmt.Errorf("broker: %w", err))
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no price source configured"))
	}
	return 0, &domain.MarketDataUnavailableError{Symbol: symbol, Err: errors.Join(errs...)}
}

func (s *PriceService) remember(symbol string, price float64, source string) {
	s.log.Debug().
		Str("symbol", symbol).
		Float64("price", price).
		Str("source", source).
		Msg("Got latest price")

	if s.cache == nil {
		return
	}
	if err := s.cache.Store(clientdata.TableCurrentPrices, symbol, price, clientdata.TTLCurrentPrice); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache price")
	}
}
