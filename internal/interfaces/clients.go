// Package interfaces defines service contracts for the portfolio manager
package interfaces

import (
	"context"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// MarketDataClient provides access to the upstream portfolio and
// market-data collaborator APIs.
type MarketDataClient interface {
	// GetPortfolio retrieves a portfolio with its enriched trade ledger.
	// A failure here is fatal to the view that requested it.
	GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error)

	// GetCurrencies retrieves the supported currency list
	GetCurrencies(ctx context.Context) ([]models.Currency, error)

	// GetExchangeRates retrieves the latest USD-based exchange rates
	GetExchangeRates(ctx context.Context) ([]models.ExchangeRate, error)

	// GetSecurities retrieves the security directory, optionally
	// filtered by a query string
	GetSecurities(ctx context.Context, query string) ([]models.Security, error)

	// SubscribeQuotes opens a push subscription for the given symbol set.
	// Changing the symbol set requires closing and reopening.
	SubscribeQuotes(ctx context.Context, symbols []string) (QuoteSubscription, error)
}

// QuoteSubscription is a live, server-push stream of quote snapshots.
type QuoteSubscription interface {
	// Snapshots delivers complete snapshots in arrival order. The channel
	// closes when the transport fails or the subscription is closed; no
	// automatic reconnect is attempted.
	Snapshots() <-chan models.QuoteSnapshot

	// Close tears the connection down synchronously. No snapshot is
	// delivered after Close returns. Safe to call more than once.
	Close() error
}
