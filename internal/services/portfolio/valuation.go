package portfolio

import (
	"sort"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// Engine revalues positions against quote snapshots. All math is USD;
// display conversion happens at the presentation boundary. An Engine
// belongs to exactly one view and is not safe for concurrent use.
type Engine struct {
	// priorMarketValue carries a position's last computed market value
	// forward across snapshots that omit its symbol, so sparse updates
	// never flicker a position back to zero.
	priorMarketValue map[string]float64 // by security ID
	now              func() time.Time   // injectable clock for testing
}

// NewEngine creates an engine with no prior state: positions without a
// quote start from a zero market value on the first compute.
func NewEngine() *Engine {
	return &Engine{
		priorMarketValue: make(map[string]float64),
		now:              time.Now,
	}
}

// Revalue computes per-position and portfolio-level performance from
// the aggregated positions and the latest snapshot. Each snapshot is
// authoritative for the symbols it contains; positions absent from it
// keep their previously computed market value. Total return is always
// marketValue − buyIn, so the invariant holds per position and for the
// portfolio aggregate. Delisted securities appear in the per-position
// list but are excluded from the portfolio sums.
//
// The input positions are not mutated.
func (e *Engine) Revalue(positions map[string]*models.Position, snapshot models.QuoteSnapshot) *models.Valuation {
	valuation := &models.Valuation{
		Positions:  make([]*models.Position, 0, len(positions)),
		ComputedAt: e.now(),
	}

	for id, base := range positions {
		position := *base // copy; the aggregate stays pristine

		position.MarketValue = e.priorMarketValue[id]
		if price, ok := quoteFor(snapshot, position.Security); ok {
			position.MarketValue = float64(position.Quantity) * price
			e.priorMarketValue[id] = position.MarketValue
		}
		position.TotalReturn = position.MarketValue - position.BuyIn

		valuation.Positions = append(valuation.Positions, &position)

		if position.Security != nil && position.Security.IsDelisted() {
			continue
		}
		valuation.Performance.BuyIn += position.BuyIn
		valuation.Performance.MarketValue += position.MarketValue
		valuation.Performance.TotalReturn += position.TotalReturn
	}

	sort.Slice(valuation.Positions, func(i, j int) bool {
		return symbolOf(valuation.Positions[i]) < symbolOf(valuation.Positions[j])
	})

	return valuation
}

func quoteFor(snapshot models.QuoteSnapshot, security *models.Security) (float64, bool) {
	if snapshot == nil || security == nil {
		return 0, false
	}
	price, ok := snapshot[security.Symbol]
	return price, ok
}

func symbolOf(position *models.Position) string {
	if position.Security == nil {
		return ""
	}
	return position.Security.Symbol
}
