package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/internal/events"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

const (
	benchmarkSymbol      = "SPY"
	benchmarkDefaultDays = 365
	benchmarkMinDays     = 30
	benchmarkMaxDays     = 1825
)

// StockResponse is a symbol's history with its moving averages. SMA entries
// are null during warm-up.
type StockResponse struct {
	Symbol        string             `json:"symbol"`
	Prices        []types.PriceBar   `json:"prices"`
	ShortPeriod   int                `json:"shortPeriod"`
	LongPeriod    int                `json:"longPeriod"`
	SMAShort      []*decimal.Decimal `json:"smaShort"`
	SMALong       []*decimal.Decimal `json:"smaLong"`
	CurrentPrice  decimal.Decimal    `json:"currentPrice"`
	ChangePercent decimal.Decimal    `json:"changePercent"`
}

// handleGetStock returns bars and moving averages for a symbol
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	symbol := utils.FormatSymbol(mux.Vars(r)["symbol"])
	days, err := intQuery(r, "days", s.deps.LookbackDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if days <= 0 {
		s.fail(w, r, types.NewValidationError("days", "must be positive"))
		return
	}

	bars, err := s.deps.Market.GetBars(r.Context(), symbol, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(bars) == 0 {
		s.fail(w, r, fmt.Errorf("%w for %s", data.ErrNoData, symbol))
		return
	}

	pair := s.deps.Indicators.Compute(bars)
	resp := StockResponse{
		Symbol:       symbol,
		Prices:       bars,
		ShortPeriod:  s.deps.Indicators.ShortPeriod(),
		LongPeriod:   s.deps.Indicators.LongPeriod(),
		SMAShort:     make([]*decimal.Decimal, len(bars)),
		SMALong:      make([]*decimal.Decimal, len(bars)),
		CurrentPrice: bars[len(bars)-1].Close,
	}
	for i := range bars {
		resp.SMAShort[i] = pair.Short.Ptr(i)
		resp.SMALong[i] = pair.Long.Ptr(i)
	}
	if n := len(bars); n >= 2 {
		resp.ChangePercent = utils.Round2(utils.CalculatePercentageChange(bars[n-2].Close, bars[n-1].Close))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetLatest returns the latest quote for a symbol
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	symbol := utils.FormatSymbol(mux.Vars(r)["symbol"])

	if s.deps.Feed != nil {
		if q, ok := s.deps.Feed.GetPrice(symbol); ok {
			writeJSON(w, http.StatusOK, q)
			return
		}
	}

	quote, err := s.deps.Market.GetLatestPrice(r.Context(), symbol)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleGetSignals scans every watched symbol
func (s *Server) handleGetSignals(w http.ResponseWriter, r *http.Request) {
	summary := s.deps.Scanner.ScanAll(r.Context(), s.deps.Watchlist.List())
	for _, sig := range summary.Signals {
		s.publish(events.NewSignalEvent(sig))
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleGetSignal evaluates a single symbol
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := s.deps.Scanner.Scan(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(events.NewSignalEvent(sig))
	writeJSON(w, http.StatusOK, sig)
}

// BacktestBody is the POST /api/backtest payload
type BacktestBody struct {
	Symbol         string           `json:"symbol"`
	StartDate      string           `json:"startDate,omitempty"`
	EndDate        string           `json:"endDate,omitempty"`
	InitialCapital *decimal.Decimal `json:"initialCapital,omitempty"`
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseDate(raw)
	if err != nil {
		return nil, types.NewValidationError(field, "expected YYYY-MM-DD, got %q", raw)
	}
	return &t, nil
}

// Request converts the body into a backtest request.
func (b BacktestBody) Request() (types.BacktestRequest, error) {
	req := types.BacktestRequest{Symbol: b.Symbol, InitialCapital: b.InitialCapital}
	var err error
	if req.StartDate, err = parseOptionalDate("startDate", b.StartDate); err != nil {
		return req, err
	}
	if req.EndDate, err = parseOptionalDate("endDate", b.EndDate); err != nil {
		return req, err
	}
	return req, nil
}

// handleRunBacktest replays the strategy over history and archives the run
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var body BacktestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := body.Request()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.deps.Backtester.Run(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if s.deps.Journal != nil {
		if err := s.deps.Journal.RecordBacktest(r.Context(), result.RunID, result); err != nil {
			s.logger.Error("Failed to archive backtest", zap.String("runId", result.RunID), zap.Error(err))
		}
	}
	s.publish(events.NewBacktestEvent(result))

	writeJSON(w, http.StatusOK, result)
}

// handleGetBacktestRun serves an archived run
func (s *Server) handleGetBacktestRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "backtest journal is disabled")
		return
	}
	result, err := s.deps.Journal.GetBacktestRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BenchmarkResponse is SPY buy-and-hold over the requested period
type BenchmarkResponse struct {
	StartPrice    decimal.Decimal `json:"spyStartPrice"`
	CurrentPrice  decimal.Decimal `json:"spyCurrentPrice"`
	ReturnPercent decimal.Decimal `json:"spyReturnPercent"`
	PeriodDays    int             `json:"periodDays"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
}

// handleBenchmark compares against holding SPY
func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", benchmarkDefaultDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if days < benchmarkMinDays || days > benchmarkMaxDays {
		s.fail(w, r, types.NewValidationError("days", "must be between %d and %d", benchmarkMinDays, benchmarkMaxDays))
		return
	}

	bars, err := s.deps.Market.GetBars(r.Context(), benchmarkSymbol, days)
	if err != nil && !errors.Is(err, data.ErrNoData) {
		s.fail(w, r, err)
		return
	}
	if len(bars) < 2 {
		s.fail(w, r, types.NewValidationError("", "insufficient data for benchmark calculation"))
		return
	}

	first, last := bars[0], bars[len(bars)-1]
	writeJSON(w, http.StatusOK, BenchmarkResponse{
		StartPrice:    first.Close,
		CurrentPrice:  last.Close,
		ReturnPercent: utils.Round2(utils.CalculatePercentageChange(first.Close, last.Close)),
		PeriodDays:    len(bars),
		StartDate:     first.Date.Format(utils.DateLayout),
		EndDate:       last.Date.Format(utils.DateLayout),
	})
}
