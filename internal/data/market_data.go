package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

var (
	// ErrFeedDisabled is returned by Start when no API key is configured
	ErrFeedDisabled = errors.New("real-time feed disabled: no api key")
	// ErrTooManySymbols is returned when the subscription cap is reached
	ErrTooManySymbols = errors.New("subscription limit reached")
)

// feedMessage is the envelope of every frame the feed pushes.
type feedMessage struct {
	Type string      `json:"type"`
	Data []feedTrade `json:"data"`
}

type feedTrade struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

// FinnhubFeed streams trade prints over a websocket and keeps the latest
// quote per subscribed symbol.
type FinnhubFeed struct {
	logger *zap.Logger
	config types.FeedConfig
	dialer *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu         sync.RWMutex
	subscriptions map[string]bool

	priceMu sync.RWMutex
	prices  map[string]types.Quote

	cbMu      sync.RWMutex
	callbacks []func(types.Quote)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFinnhubFeed creates a feed. It does not connect until Start.
func NewFinnhubFeed(logger *zap.Logger, config types.FeedConfig) *FinnhubFeed {
	return &FinnhubFeed{
		logger:        logger.Named("price-feed"),
		config:        config,
		dialer:        websocket.DefaultDialer,
		subscriptions: make(map[string]bool),
		prices:        make(map[string]types.Quote),
	}
}

// Enabled reports whether an API key is configured
func (f *FinnhubFeed) Enabled() bool {
	return f.config.APIKey != ""
}

// Start connects in the background and keeps reconnecting until ctx is
// cancelled or Stop is called.
func (f *FinnhubFeed) Start(ctx context.Context) error {
	if !f.Enabled() {
		f.logger.Warn("No API key configured, real-time prices disabled")
		return ErrFeedDisabled
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.run(ctx)

	f.logger.Info("Price feed started", zap.String("url", f.config.URL))
	return nil
}

// Stop closes the connection and waits for the reader to exit
func (f *FinnhubFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConn()
	f.wg.Wait()
	f.logger.Info("Price feed stopped")
}

func (f *FinnhubFeed) run(ctx context.Context) {
	defer f.wg.Done()

	for {
		if err := f.connect(ctx); err != nil {
			f.logger.Error("Connection failed", zap.Error(err))
		} else {
			f.resubscribe()
			f.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.config.ReconnectDelay):
			f.logger.Info("Reconnecting to price feed")
		}
	}
}

func (f *FinnhubFeed) endpoint() (string, error) {
	u, err := url.Parse(f.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	q.Set("token", f.config.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *FinnhubFeed) connect(ctx context.Context) error {
	endpoint, err := f.endpoint()
	if err != nil {
		return err
	}

	conn, _, err := f.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.logger.Debug("Connected to price feed")
	return nil
}

func (f *FinnhubFeed) closeConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *FinnhubFeed) readLoop(ctx context.Context) {
	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warn("Price feed read error", zap.Error(err))
			}
			f.closeConn()
			return
		}
		f.handleMessage(message)
	}
}

// send writes a control frame if connected. A missing connection is not an
// error: subscriptions are replayed on connect.
func (f *FinnhubFeed) send(kind, symbol string) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.WriteJSON(map[string]string{"type": kind, "symbol": symbol})
}

func (f *FinnhubFeed) resubscribe() {
	for _, symbol := range f.SubscribedSymbols() {
		if err := f.send("subscribe", symbol); err != nil {
			f.logger.Warn("Resubscribe failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// Subscribe adds symbol to the stream
func (f *FinnhubFeed) Subscribe(symbol string) error {
	symbol = utils.FormatSymbol(symbol)
	if symbol == "" {
		return types.NewValidationError("symbol", "must not be empty")
	}

	f.subMu.Lock()
	if f.subscriptions[symbol] {
		f.subMu.Unlock()
		return nil
	}
	if f.config.MaxSymbols > 0 && len(f.subscriptions) >= f.config.MaxSymbols {
		f.subMu.Unlock()
		return fmt.Errorf("%w (%d symbols)", ErrTooManySymbols, f.config.MaxSymbols)
	}
	f.subscriptions[symbol] = true
	f.subMu.Unlock()

	if err := f.send("subscribe", symbol); err != nil {
		return err
	}
	f.logger.Debug("Subscribed to symbol", zap.String("symbol", symbol))
	return nil
}

// Unsubscribe removes symbol from the stream
func (f *FinnhubFeed) Unsubscribe(symbol string) error {
	symbol = utils.FormatSymbol(symbol)

	f.subMu.Lock()
	if !f.subscriptions[symbol] {
		f.subMu.Unlock()
		return nil
	}
	delete(f.subscriptions, symbol)
	f.subMu.Unlock()

	f.priceMu.Lock()
	delete(f.prices, symbol)
	f.priceMu.Unlock()

	return f.send("unsubscribe", symbol)
}

// SubscribedSymbols returns the current subscriptions, sorted
func (f *FinnhubFeed) SubscribedSymbols() []string {
	f.subMu.RLock()
	defer f.subMu.RUnlock()

	symbols := make([]string, 0, len(f.subscriptions))
	for symbol := range f.subscriptions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (f *FinnhubFeed) handleMessage(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("Ignoring malformed frame", zap.Error(err))
		return
	}
	if msg.Type != "trade" {
		return
	}

	for _, t := range msg.Data {
		quote := f.applyTrade(t)
		f.cbMu.RLock()
		callbacks := f.callbacks
		f.cbMu.RUnlock()
		for _, fn := range callbacks {
			fn(quote)
		}
	}
}

// applyTrade records a print and returns the quote with change measured
// against the previous print of the same symbol.
func (f *FinnhubFeed) applyTrade(t feedTrade) types.Quote {
	symbol := utils.FormatSymbol(t.Symbol)
	price := decimal.NewFromFloat(t.Price)

	f.priceMu.Lock()
	defer f.priceMu.Unlock()

	quote := types.Quote{
		Symbol:    symbol,
		Price:     price,
		Volume:    int64(t.Volume),
		Timestamp: time.UnixMilli(t.Timestamp).UTC(),
		Source:    "finnhub",
	}
	if prev, ok := f.prices[symbol]; ok {
		quote.Change = price.Sub(prev.Price)
		quote.ChangePercent = utils.CalculatePercentageChange(prev.Price, price).Round(2)
	}
	f.prices[symbol] = quote
	return quote
}

// OnPrice registers a callback invoked for every trade print
func (f *FinnhubFeed) OnPrice(fn func(types.Quote)) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.callbacks = append(f.callbacks, fn)
}

// GetPrice returns the latest streamed quote for a symbol
func (f *FinnhubFeed) GetPrice(symbol string) (types.Quote, bool) {
	f.priceMu.RLock()
	defer f.priceMu.RUnlock()
	q, ok := f.prices[utils.FormatSymbol(symbol)]
	return q, ok
}

// Prices returns a copy of every latest quote
func (f *FinnhubFeed) Prices() map[string]types.Quote {
	f.priceMu.RLock()
	defer f.priceMu.RUnlock()

	out := make(map[string]types.Quote, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out
}
