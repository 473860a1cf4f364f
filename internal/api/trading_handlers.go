package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

// handleGetPortfolio values the paper account
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ledger.Snapshot(r.Context()))
}

// handleResetPortfolio restores the starting balance
func (s *Server) handleResetPortfolio(w http.ResponseWriter, r *http.Request) {
	s.deps.Ledger.Reset()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Portfolio reset to $%s", s.deps.Ledger.InitialBalance().StringFixed(2)),
	})
}

// HistoryResponse is the recorded value history as parallel arrays
type HistoryResponse struct {
	Dates  []time.Time       `json:"dates"`
	Values []decimal.Decimal `json:"values"`
}

// handlePortfolioHistory returns recorded account values
func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	history := s.deps.Ledger.History()
	resp := HistoryResponse{
		Dates:  make([]time.Time, len(history)),
		Values: make([]decimal.Decimal, len(history)),
	}
	for i, p := range history {
		resp.Dates[i], resp.Values[i] = p.Timestamp, p.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePortfolioStats summarizes closed trades
func (s *Server) handlePortfolioStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ledger.Stats())
}

// CheckStopsResponse lists the positions a stop check closed
type CheckStopsResponse struct {
	TriggeredCount int           `json:"triggeredCount"`
	Trades         []types.Trade `json:"trades"`
}

// handleCheckStops runs a stop check immediately
func (s *Server) handleCheckStops(w http.ResponseWriter, r *http.Request) {
	trades := s.deps.Ledger.CheckStops(r.Context())
	if trades == nil {
		trades = []types.Trade{}
	}
	writeJSON(w, http.StatusOK, CheckStopsResponse{TriggeredCount: len(trades), Trades: trades})
}

// TradeBody is the POST /api/trades payload
type TradeBody struct {
	Symbol string            `json:"symbol"`
	Action types.TradeAction `json:"action"`
	Shares *int64            `json:"shares,omitempty"`
}

// handleExecuteTrade buys or sells at the latest price
func (s *Server) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body TradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		trade types.Trade
		err   error
	)
	switch body.Action {
	case types.TradeActionBuy:
		trade, err = s.deps.Ledger.Buy(r.Context(), body.Symbol, body.Shares)
	case types.TradeActionSell:
		trade, err = s.deps.Ledger.Sell(r.Context(), body.Symbol, types.ExitReasonManual)
	default:
		err = types.NewValidationError("action", "must be buy or sell, got %q", body.Action)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// TradeHistory lists every executed trade
type TradeHistory struct {
	Trades []types.Trade `json:"trades"`
	Count  int           `json:"count"`
}

// handleGetTrades returns the trade log
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.deps.Ledger.Trades()
	writeJSON(w, http.StatusOK, TradeHistory{Trades: trades, Count: len(trades)})
}

// handleGetTrade returns one trade
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trade, ok := s.deps.Ledger.GetTrade(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("trade %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// WatchlistResponse is the current watchlist
type WatchlistResponse struct {
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
	MaxSize int      `json:"maxSize"`
}

// SymbolActionResponse reports a watchlist change
type SymbolActionResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Symbols []string `json:"symbols"`
}

// handleGetWatchlist lists watched symbols
func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	symbols := s.deps.Watchlist.List()
	writeJSON(w, http.StatusOK, WatchlistResponse{
		Symbols: symbols,
		Count:   len(symbols),
		MaxSize: s.deps.Watchlist.MaxSize(),
	})
}

func (s *Server) feedEnabled() bool {
	return s.deps.Feed != nil && s.deps.Feed.Enabled()
}

// handleAddSymbol watches a symbol and subscribes it to the live feed
func (s *Server) handleAddSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := utils.FormatSymbol(mux.Vars(r)["symbol"])
	if err := s.deps.Watchlist.Add(r.Context(), symbol); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.feedEnabled() {
		if err := s.deps.Feed.Subscribe(symbol); err != nil {
			s.logger.Warn("Live feed subscription failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, SymbolActionResponse{
		Success: true,
		Message: fmt.Sprintf("Added %s to watchlist", symbol),
		Symbols: s.deps.Watchlist.List(),
	})
}

// handleRemoveSymbol stops watching a symbol
func (s *Server) handleRemoveSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := utils.FormatSymbol(mux.Vars(r)["symbol"])
	if err := s.deps.Watchlist.Remove(symbol); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.feedEnabled() {
		if err := s.deps.Feed.Unsubscribe(symbol); err != nil {
			s.logger.Debug("Live feed unsubscribe failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, SymbolActionResponse{
		Success: true,
		Message: fmt.Sprintf("Removed %s from watchlist", symbol),
		Symbols: s.deps.Watchlist.List(),
	})
}

// ValidateResponse reports whether a symbol can be watched
type ValidateResponse struct {
	Symbol      string `json:"symbol"`
	Valid       bool   `json:"valid"`
	InWatchlist bool   `json:"inWatchlist"`
	Error       string `json:"error,omitempty"`
}

// handleValidateSymbol checks a symbol without changing the watchlist
func (s *Server) handleValidateSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := utils.FormatSymbol(mux.Vars(r)["symbol"])
	resp := ValidateResponse{Symbol: symbol, Valid: true, InWatchlist: s.deps.Watchlist.Contains(symbol)}
	if err := s.deps.Watchlist.Validate(r.Context(), symbol); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
