// Package interfaces defines service contracts for the portfolio manager
package interfaces

import (
	"context"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// ReferenceDataService exposes TTL-cached reference data: currencies,
// exchange rates, and the security directory. Reads return the best
// currently-held value immediately; staleness triggers a background
// refresh that never surfaces its failure to the caller.
type ReferenceDataService interface {
	// Currencies returns the cached currency list (possibly empty)
	Currencies(ctx context.Context) []models.Currency

	// ExchangeRate returns the latest rate for code (units per 1 USD)
	// and whether one is known
	ExchangeRate(ctx context.Context, code string) (float64, bool)

	// ConvertFromUsd converts a USD amount into the given currency.
	// Returns nil when the rate is unavailable: a conversion must never
	// silently succeed with wrong units.
	ConvertFromUsd(ctx context.Context, amount float64, code string) *float64

	// ConvertToUsd converts an amount in the given currency back to USD.
	// Returns nil when the rate is unavailable.
	ConvertToUsd(ctx context.Context, amount float64, code string) *float64

	// Securities returns the cached security directory (possibly empty)
	Securities(ctx context.Context) []models.Security

	// SecurityByID looks a security up in the cached directory
	SecurityByID(ctx context.Context, id string) (*models.Security, bool)

	// SearchSecurities returns up to 10 non-delisted securities matching
	// the query, in directory order
	SearchSecurities(ctx context.Context, query string) []models.Security
}

// ValuationView is a live, continuously revalued view of one portfolio.
// Each view owns its own quote subscription and working state; there is
// no cross-view sharing.
type ValuationView interface {
	// Current returns the most recently computed valuation
	Current() *models.Valuation

	// Live reports whether the quote subscription is still delivering
	Live() bool

	// DisplayCurrency returns the current display currency code
	DisplayCurrency() string

	// SetDisplayCurrency changes the display currency, triggering a
	// recompute
	SetDisplayCurrency(code string)

	// Subscribe registers an observer that receives every recomputed
	// valuation. The returned func unregisters it.
	Subscribe(fn func(*models.Valuation)) (unsubscribe func())

	// Close tears down the quote stream and stops the view's event loop
	Close()
}
