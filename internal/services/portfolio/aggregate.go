// Package portfolio derives positions from a trade ledger and keeps
// them continuously revalued against live quotes.
package portfolio

import (
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// SecurityLookup resolves a security ID against the security directory,
// attaching status and display fields to the derived position.
type SecurityLookup func(securityID string) (*models.Security, bool)

// Aggregate folds a trade ledger into one position per security. A
// single pass accumulates the signed quantity and cost basis; ledger
// order does not affect the result. Sells net negatively; this is a
// deliberate policy, not an accident of iteration.
//
// Brokerage fees ride on the trade but are excluded from the cost
// basis. Market value and total return start at zero; the valuation
// engine fills them in.
func Aggregate(trades []*models.Trade, lookup SecurityLookup) map[string]*models.Position {
	positions := make(map[string]*models.Position)

	for _, trade := range trades {
		position, ok := positions[trade.SecurityID]
		if !ok {
			position = &models.Position{Security: resolveSecurity(trade, lookup)}
			positions[trade.SecurityID] = position
		}

		signed := trade.SignedQuantity()
		position.Quantity += signed
		position.BuyIn += float64(signed) * trade.UnitPrice
	}

	return positions
}

// resolveSecurity prefers the directory entry (authoritative status);
// the trade's embedded security is the fallback for symbols the
// directory does not know.
func resolveSecurity(trade *models.Trade, lookup SecurityLookup) *models.Security {
	if lookup != nil {
		if security, ok := lookup(trade.SecurityID); ok {
			return security
		}
	}
	return trade.Security
}
