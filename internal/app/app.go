// Package app wires configuration, storage, clients, and services into
// one initialized application core.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/clients/marketdata"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/services/portfolio"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/services/quote"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/services/refdata"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/services/search"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/storage"
)

// App holds all initialized services and clients. It is the shared core
// behind cmd/portfolio-server.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Store       interfaces.CacheStore
	Client      interfaces.MarketDataClient
	RefData     *refdata.Service
	Views       *portfolio.Manager
	Searcher    *search.Debouncer
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, the upstream client, and all services.
// configPath may be empty, in which case the default resolution logic
// is used: $PORTMAN_CONFIG, then portman.toml beside the binary, then
// config/portman.toml.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("PORTMAN_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "portman.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/portman.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage path to binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	store, err := storage.NewCacheStore(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	mdConfig := config.Clients.MarketData
	client := marketdata.NewClient(mdConfig.BaseURL,
		marketdata.WithLogger(logger),
		marketdata.WithRateLimit(mdConfig.RateLimit),
		marketdata.WithTimeout(mdConfig.GetTimeout()),
		marketdata.WithSession(mdConfig.SessionSecret, mdConfig.SessionUser, mdConfig.GetSessionExpiry()),
	)

	refData := refdata.NewService(context.Background(), client, store, logger)

	// Quote subscriptions reconnect with backoff; the raw client never
	// does on its own.
	subscribe := func(ctx context.Context, symbols []string) (interfaces.QuoteSubscription, error) {
		return quote.NewRedialer(ctx, client.SubscribeQuotes, symbols, quote.WithLogger(logger))
	}

	views := portfolio.NewManager(client, refData, subscribe, config.DisplayCurrency, logger)
	searcher := search.NewDebouncer(refData, config.Search.Debounce(), logger)

	app := &App{
		Config:      config,
		Logger:      logger,
		Store:       store,
		Client:      client,
		RefData:     refData,
		Views:       views,
		Searcher:    searcher,
		StartupTime: startupStart,
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("storage", config.Storage.Backend).
		Dur("startup", time.Since(startupStart)).
		Msg("Application initialized")

	return app, nil
}

// Close shuts down views, the searcher, and storage, in that order.
func (a *App) Close() {
	a.Views.Close()
	a.Searcher.Close()

	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Cache store close failed")
	}
}
