package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/services/portfolio"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/services/search"
)

// Server wraps the HTTP server and the services it fronts.
type Server struct {
	config   *common.Config
	logger   *common.Logger
	refdata  interfaces.ReferenceDataService
	views    *portfolio.Manager
	searcher *search.Debouncer
	render   renderer

	server       *http.Server
	shutdownChan chan struct{}

	mu   sync.Mutex
	hubs map[string]*viewBinding
}

// viewBinding ties one portfolio view to the hub broadcasting its
// recomputed payloads.
type viewBinding struct {
	hub         *ViewHub
	unsubscribe func()
}

// NewServer creates the HTTP REST API server.
func NewServer(config *common.Config, logger *common.Logger, refdata interfaces.ReferenceDataService, views *portfolio.Manager, searcher *search.Debouncer) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		refdata:  refdata,
		views:    views,
		searcher: searcher,
		render:   renderer{refdata: refdata},
		hubs:     make(map[string]*viewBinding),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetShutdownChannel sets the channel signaled when HTTP shutdown is requested.
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its view hubs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, binding := range s.hubs {
		binding.unsubscribe()
		binding.hub.Stop()
		delete(s.hubs, id)
	}
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

// binding returns the broadcast hub for a view, creating it and wiring
// the view's observer on first use. The hub lives as long as the view.
func (s *Server) binding(view *portfolio.View) *ViewHub {
	portfolioID := view.Portfolio().ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.hubs[portfolioID]; ok {
		return b.hub
	}

	hub := NewViewHub(s.logger)
	go hub.Run()

	unsubscribe := view.Subscribe(func(valuation *models.Valuation) {
		payload := s.renderView(context.Background(), view, valuation)
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to marshal view payload")
			return
		}
		hub.Broadcast(data)
	})

	s.hubs[portfolioID] = &viewBinding{hub: hub, unsubscribe: unsubscribe}
	return hub
}

// renderView produces the client payload for a view's valuation.
func (s *Server) renderView(ctx context.Context, view *portfolio.View, valuation *models.Valuation) *ViewPayload {
	p := view.Portfolio()
	return s.render.Render(ctx, p.ID, p.Name, valuation, view.DisplayCurrency(), view.Live())
}
