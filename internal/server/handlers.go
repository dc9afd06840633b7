package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Live valuation views
	mux.HandleFunc("/api/v1/views/", s.routeViews)

	// Security directory
	mux.HandleFunc("/api/v1/securities/search", s.handleSecuritySearch)
	mux.HandleFunc("/api/v1/currencies", s.handleCurrencies)
}

// routeViews dispatches /api/v1/views/{portfolioID}[/currency|/stream].
func (s *Server) routeViews(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/views/")
	portfolioID, subpath, _ := strings.Cut(rest, "/")
	if portfolioID == "" {
		WriteError(w, http.StatusNotFound, "Portfolio ID is required")
		return
	}

	switch subpath {
	case "":
		s.handleViewGet(w, r, portfolioID)
	case "currency":
		s.handleViewCurrency(w, r, portfolioID)
	case "stream":
		s.handleViewStream(w, r, portfolioID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// handleViewGet handles GET /api/v1/views/{portfolioID}.
func (s *Server) handleViewGet(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	view, err := s.views.View(r.Context(), portfolioID)
	if err != nil {
		s.logger.Error().Err(err).Str("portfolio", portfolioID).Msg("View creation failed")
		WriteError(w, http.StatusBadGateway, "Failed to load portfolio: "+err.Error())
		return
	}

	// An X-Display-Currency header renders this response in another
	// currency without touching the view's own setting.
	ctx := r.Context()
	currency := common.ResolveDisplayCurrency(ctx, view.DisplayCurrency())

	payload := s.render.Render(ctx, view.Portfolio().ID, view.Portfolio().Name, view.Current(), currency, view.Live())
	WriteJSON(w, http.StatusOK, payload)
}

var currencyCodePattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// handleViewCurrency handles PUT /api/v1/views/{portfolioID}/currency.
func (s *Server) handleViewCurrency(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var req struct {
		Currency string `json:"currency"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !currencyCodePattern.MatchString(req.Currency) {
		WriteError(w, http.StatusBadRequest, "Currency must be a 3-letter ISO code")
		return
	}

	view, ok := s.views.Lookup(portfolioID)
	if !ok {
		WriteError(w, http.StatusNotFound, "No view for portfolio "+portfolioID)
		return
	}

	code := strings.ToUpper(req.Currency)
	view.SetDisplayCurrency(code)

	WriteJSON(w, http.StatusOK, map[string]string{"display_currency": code})
}

// handleViewStream handles GET /api/v1/views/{portfolioID}/stream: a
// WebSocket that receives the current payload immediately and every
// recomputed one after.
func (s *Server) handleViewStream(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	view, err := s.views.View(r.Context(), portfolioID)
	if err != nil {
		s.logger.Error().Err(err).Str("portfolio", portfolioID).Msg("View creation failed")
		WriteError(w, http.StatusBadGateway, "Failed to load portfolio: "+err.Error())
		return
	}

	hub := s.binding(view)

	initial, err := json.Marshal(s.renderView(r.Context(), view, view.Current()))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to render view")
		return
	}

	hub.ServeWS(w, r, initial)
}

// handleSecuritySearch handles GET /api/v1/securities/search?query=.
// Requests are debounced server-side: a request superseded by a newer
// query before the window elapses gets 204, and the newer request gets
// the executed result.
func (s *Server) handleSecuritySearch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		WriteError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}

	securities, executed := s.searcher.Search(r.Context(), query)
	if !executed {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":      query,
		"securities": securities,
	})
}

// handleCurrencies handles GET /api/v1/currencies.
func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.refdata.Currencies(r.Context()))
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":      s.config.Environment,
		"display_currency": s.config.DisplayCurrency,
		"storage_backend":  s.config.Storage.Backend,
		"market_data_url":  s.config.Clients.MarketData.BaseURL,
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
