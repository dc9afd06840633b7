// Package common provides shared utilities for the portfolio manager
package common

import "time"

// Freshness TTLs for cached reference data
const (
	FreshnessCurrencies    = 7 * 24 * time.Hour // currency list, rarely changes
	FreshnessExchangeRates = 24 * time.Hour     // daily midpoint rates
	FreshnessSecurities    = 12 * time.Hour     // security directory
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
