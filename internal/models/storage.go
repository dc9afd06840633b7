package models

import (
	"encoding/json"
	"time"
)

// Cache store keys for persisted reference data.
const (
	CacheKeyCurrencies    = "currencies"
	CacheKeyExchangeRates = "exchangeRates"
	CacheKeySecurities    = "securities"
)

// CacheRecord is the persisted form of one reference-data cache entry:
// the raw value plus the timestamp of the last successful refresh.
// Records are never deleted; they live for the store's lifetime and
// survive restarts on durable backends.
type CacheRecord struct {
	Key             string          `json:"key" badgerhold:"key"`
	Value           json.RawMessage `json:"value"`
	UpdateTimestamp time.Time       `json:"update_timestamp"`
}
