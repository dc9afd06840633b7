package portfolio

import (
	"context"
	"fmt"
	"sync"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// SubscribeFunc opens a quote subscription for a symbol set. It matches
// MarketDataClient.SubscribeQuotes and lets decorators (retry, backoff)
// slot in without the manager knowing.
type SubscribeFunc func(ctx context.Context, symbols []string) (interfaces.QuoteSubscription, error)

// Manager creates and owns live valuation views, one per portfolio.
// Views live until the manager shuts down; a second request for the
// same portfolio returns the existing view.
type Manager struct {
	client    interfaces.MarketDataClient
	refdata   interfaces.ReferenceDataService
	subscribe SubscribeFunc
	logger    *common.Logger

	defaultCurrency string

	mu    sync.Mutex
	views map[string]*View
}

// NewManager builds a view manager. The subscribe func defaults to the
// client's own SubscribeQuotes when nil.
func NewManager(client interfaces.MarketDataClient, refdata interfaces.ReferenceDataService, subscribe SubscribeFunc, defaultCurrency string, logger *common.Logger) *Manager {
	if subscribe == nil {
		subscribe = client.SubscribeQuotes
	}
	if defaultCurrency == "" {
		defaultCurrency = models.BaseCurrencyCode
	}
	return &Manager{
		client:          client,
		refdata:         refdata,
		subscribe:       subscribe,
		logger:          logger,
		defaultCurrency: defaultCurrency,
		views:           make(map[string]*View),
	}
}

// View returns the live view for the given portfolio, creating it on
// first request. Failure to fetch the trade ledger is fatal to the
// request: a view is never built from a partial ledger.
func (m *Manager) View(ctx context.Context, portfolioID string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if view, ok := m.views[portfolioID]; ok {
		return view, nil
	}

	portfolio, err := m.client.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio %s: %w", portfolioID, err)
	}

	stream, err := m.subscribe(ctx, portfolio.Symbols())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to quotes for portfolio %s: %w", portfolioID, err)
	}

	lookup := func(securityID string) (*models.Security, bool) {
		return m.refdata.SecurityByID(ctx, securityID)
	}

	view := NewView(portfolio, lookup, stream, m.defaultCurrency, m.logger)
	m.views[portfolioID] = view

	m.logger.Info().
		Str("portfolio", portfolioID).
		Int("symbols", len(portfolio.Symbols())).
		Msg("Live valuation view created")

	return view, nil
}

// Lookup returns an existing view without creating one.
func (m *Manager) Lookup(portfolioID string) (*View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.views[portfolioID]
	return view, ok
}

// Close shuts down every view. Called once at process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for _, view := range m.views {
		views = append(views, view)
	}
	m.views = make(map[string]*View)
	m.mu.Unlock()

	for _, view := range views {
		view.Close()
	}
}
