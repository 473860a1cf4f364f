// Package api provides the HTTP and WebSocket server.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/backtester"
	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/internal/events"
	"github.com/atlas-desktop/crossover-trader/internal/indicators"
	"github.com/atlas-desktop/crossover-trader/internal/journal"
	"github.com/atlas-desktop/crossover-trader/internal/metrics"
	"github.com/atlas-desktop/crossover-trader/internal/portfolio"
	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/internal/sizing"
	"github.com/atlas-desktop/crossover-trader/internal/watchlist"
	"github.com/atlas-desktop/crossover-trader/internal/workers"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

const (
	serviceName    = "Crossover Trader API"
	serviceVersion = "1.0.0"
)

// Deps are the components the API serves. Journal, Bus, Feed and Pool are
// optional.
type Deps struct {
	Market       data.PriceSource
	Indicators   *indicators.Engine
	Scanner      *signals.Scanner
	Ledger       *portfolio.Ledger
	Backtester   *backtester.Engine
	Watchlist    *watchlist.Watchlist
	Journal      *journal.SQLiteJournal
	Bus          *events.EventBus
	Feed         *data.FinnhubFeed
	Pool         *workers.Pool
	LookbackDays int
}

// Server is the HTTP/WebSocket API server
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	deps       Deps
	router     *mux.Router
	hub        *Hub
	busSub     *events.Subscription
	httpServer *http.Server
	hubCtx     context.Context
	stopHub    context.CancelFunc
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, config *types.ServerConfig, deps Deps) *Server {
	if deps.LookbackDays <= 0 {
		deps.LookbackDays = types.DefaultDataConfig().LookbackDays
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:  logger.Named("api"),
		config:  config,
		deps:    deps,
		router:  mux.NewRouter(),
		hub:     NewHub(logger, nil),
		hubCtx:  ctx,
		stopHub: cancel,
	}
	if deps.Bus != nil {
		s.busSub = s.hub.Attach(deps.Bus)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Market data and signals
	api.HandleFunc("/stocks/{symbol}", s.handleGetStock).Methods(http.MethodGet)
	api.HandleFunc("/stocks/{symbol}/latest", s.handleGetLatest).Methods(http.MethodGet)
	api.HandleFunc("/signals", s.handleGetSignals).Methods(http.MethodGet)
	api.HandleFunc("/signals/{symbol}", s.handleGetSignal).Methods(http.MethodGet)

	// Paper account
	api.HandleFunc("/portfolio", s.handleGetPortfolio).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/reset", s.handleResetPortfolio).Methods(http.MethodPost)
	api.HandleFunc("/portfolio/history", s.handlePortfolioHistory).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/stats", s.handlePortfolioStats).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/check-stops", s.handleCheckStops).Methods(http.MethodPost)
	api.HandleFunc("/trades", s.handleExecuteTrade).Methods(http.MethodPost)
	api.HandleFunc("/trades", s.handleGetTrades).Methods(http.MethodGet)
	api.HandleFunc("/trades/{id}", s.handleGetTrade).Methods(http.MethodGet)

	// Backtesting
	api.HandleFunc("/backtest", s.handleRunBacktest).Methods(http.MethodPost)
	api.HandleFunc("/backtest/runs/{id}", s.handleGetBacktestRun).Methods(http.MethodGet)
	api.HandleFunc("/benchmark", s.handleBenchmark).Methods(http.MethodGet)

	// Watchlist
	api.HandleFunc("/watchlist", s.handleGetWatchlist).Methods(http.MethodGet)
	api.HandleFunc("/watchlist/validate/{symbol}", s.handleValidateSymbol).Methods(http.MethodGet)
	api.HandleFunc("/watchlist/{symbol}", s.handleAddSymbol).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/{symbol}", s.handleRemoveSymbol).Methods(http.MethodDelete)

	// WebSocket
	s.router.HandleFunc(s.config.WebSocketPath, s.hub.ServeWS)
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Hub exposes the WebSocket hub
func (s *Server) Hub() *Hub { return s.hub }

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.hub.Run(s.hubCtx)

	s.logger.Info("Starting API server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server and disconnects WebSocket clients
func (s *Server) Stop(ctx context.Context) error {
	s.stopHub()
	if s.busSub != nil && s.deps.Bus != nil {
		s.deps.Bus.Unsubscribe(s.busSub)
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) publish(e events.Event) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(e)
	}
}

// handleRoot describes the service
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"stocks":    "/api/stocks/{symbol}",
			"signals":   "/api/signals",
			"portfolio": "/api/portfolio",
			"trades":    "/api/trades",
			"backtest":  "/api/backtest",
			"benchmark": "/api/benchmark",
			"watchlist": "/api/watchlist",
			"websocket": s.config.WebSocketPath,
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"time":    time.Now().Unix(),
		"clients": s.hub.ClientCount(),
	}
	if s.deps.Pool != nil {
		body["workers"] = s.deps.Pool.Stats()
	}
	if s.deps.Bus != nil {
		body["events"] = s.deps.Bus.GetStats()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, backtester.ErrInsufficientData),
		errors.Is(err, portfolio.ErrDomainRule),
		errors.Is(err, sizing.ErrInvalidEntryPrice),
		errors.Is(err, sizing.ErrInvalidStopPrice),
		errors.Is(err, sizing.ErrInvalidEquity),
		errors.Is(err, watchlist.ErrWatchlistFull),
		errors.Is(err, watchlist.ErrAlreadyWatched),
		errors.Is(err, watchlist.ErrInvalidSymbol),
		errors.Is(err, watchlist.ErrNotWatched):
		return http.StatusBadRequest
	case errors.Is(err, data.ErrNoData),
		errors.Is(err, data.ErrInsufficientBars),
		errors.Is(err, journal.ErrRunNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// intQuery parses an integer query parameter, returning def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewValidationError(name, "must be an integer, got %q", raw)
	}
	return v, nil
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}
