// Package models defines data structures for the portfolio manager
package models

import (
	"math"
	"strings"
	"time"
)

// SecurityStatus indicates whether a security is currently listed
type SecurityStatus string

const (
	SecurityStatusActive   SecurityStatus = "ACTIVE"
	SecurityStatusDelisted SecurityStatus = "DELISTED"
)

// Security is one entry in the security directory
type Security struct {
	ID       string         `json:"id"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Exchange string         `json:"exchange"`
	Status   SecurityStatus `json:"status"`
}

// IsDelisted returns true when the security is no longer listed.
// Delisted securities stay visible per position but are excluded
// from portfolio-level sums.
func (s *Security) IsDelisted() bool {
	return s.Status == SecurityStatusDelisted
}

// Matches reports whether the security matches a case-insensitive
// substring query on symbol or name.
func (s *Security) Matches(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(s.Symbol), q) ||
		strings.Contains(strings.ToLower(s.Name), q)
}

// Currency represents a supported display currency
type Currency struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// BaseCurrencyCode is the storage currency for all monetary trade fields.
// Every conversion goes through USD.
const BaseCurrencyCode = "USD"

// ExchangeRate is the latest known rate for one currency:
// units of To per 1 USD. No historical series is kept.
type ExchangeRate struct {
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}

// QuoteSnapshot is one complete, self-consistent mapping of security
// symbol to USD price at a point in time. Each snapshot replaces the
// previous one; it is not a delta. Symbols absent from a snapshot keep
// their prior known price.
type QuoteSnapshot map[string]float64

// ReceivedQuotes pairs a snapshot with its arrival time.
type ReceivedQuotes struct {
	Quotes     QuoteSnapshot `json:"quotes"`
	ReceivedAt time.Time     `json:"received_at"`
}

// Round2 rounds a monetary amount to 2 decimal places. Used only at the
// presentation boundary; aggregation always runs on unrounded values.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
