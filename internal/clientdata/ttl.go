package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	TTLBrokerSymbol = 30 * 24 * time.Hour // symbol ids are stable for the life of a listing

	TTLQuote        = 5 * time.Minute
	TTLCurrentPrice = time.Minute
)
