package models

import "time"

// TradeType distinguishes buys from sells
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Trade is one immutable ledger entry. Monetary fields are USD; the
// ledger subsystem normalizes amounts before storage, so aggregation
// never mixes currencies.
type Trade struct {
	ID            string    `json:"id"`
	SecurityID    string    `json:"security_id"`
	Security      *Security `json:"security,omitempty"` // attached by the ledger API
	TradeType     TradeType `json:"trade_type"`
	TradeDatetime time.Time `json:"trade_datetime"` // UTC instant
	UnitPrice     float64   `json:"unit_price"`     // USD, positive
	Quantity      int64     `json:"quantity"`       // positive
	BrokerageFee  float64   `json:"brokerage_fee"`  // USD, non-negative
}

// SignedQuantity nets sells negatively: a SELL reduces the position by
// its quantity, a BUY increases it.
func (t *Trade) SignedQuantity() int64 {
	if t.TradeType == TradeTypeSell {
		return -t.Quantity
	}
	return t.Quantity
}

// Portfolio is the ledger source fetched from the portfolio CRUD
// collaborator: a named trade ledger with a preferred display currency.
type Portfolio struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Currency Currency `json:"currency"`
	Trades   []*Trade `json:"trades"`
}

// Symbols returns the distinct security symbols traded in the portfolio,
// in first-appearance order.
func (p *Portfolio) Symbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, t := range p.Trades {
		if t.Security == nil || seen[t.Security.Symbol] {
			continue
		}
		seen[t.Security.Symbol] = true
		symbols = append(symbols, t.Security.Symbol)
	}
	return symbols
}

// Position is the derived, per-security summary of holdings and
// performance. Never persisted, always rederived from the ledger.
type Position struct {
	Security    *Security `json:"security"`
	Quantity    int64     `json:"quantity"`     // signed net quantity
	BuyIn       float64   `json:"buy_in"`       // cumulative cost basis, USD
	MarketValue float64   `json:"market_value"` // USD; carried forward when no quote
	TotalReturn float64   `json:"total_return"` // market_value - buy_in, USD
}

// Performance holds portfolio-level aggregates in USD. Delisted
// positions are excluded from these sums.
type Performance struct {
	BuyIn       float64 `json:"buy_in"`
	MarketValue float64 `json:"market_value"`
	TotalReturn float64 `json:"total_return"`
}

// Valuation is the full output of one revaluation pass.
type Valuation struct {
	Positions   []*Position `json:"positions"`
	Performance Performance `json:"performance"`
	ComputedAt  time.Time   `json:"computed_at"`
}
