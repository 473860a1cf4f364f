// Package watchlist keeps the persisted set of symbols the scanner follows.
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/data"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

const maxSymbolLength = 10

var (
	ErrWatchlistFull  = errors.New("watchlist is full")
	ErrAlreadyWatched = errors.New("symbol already in watchlist")
	ErrNotWatched     = errors.New("symbol not in watchlist")
	ErrInvalidSymbol  = errors.New("invalid symbol")
)

// Validator decides whether a symbol can be traded.
type Validator interface {
	Validate(ctx context.Context, symbol string) error
}

// SourceValidator accepts symbols the price source has bars for.
type SourceValidator struct {
	Source data.PriceSource
}

// Validate implements Validator
func (v SourceValidator) Validate(ctx context.Context, symbol string) error {
	if _, err := v.Source.GetLatestPrice(ctx, symbol); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSymbol, symbol, err)
	}
	return nil
}

type fileFormat struct {
	Symbols []string `json:"symbols"`
}

// Watchlist is a mutex-guarded symbol set backed by a JSON file.
type Watchlist struct {
	logger    *zap.Logger
	path      string
	maxSize   int
	validator Validator

	mu      sync.Mutex
	symbols map[string]struct{}
}

// New loads the watchlist at cfg.File. A missing file is created with the
// defaults; an unreadable one falls back to them without being overwritten.
func New(logger *zap.Logger, cfg types.WatchlistConfig, validator Validator) (*Watchlist, error) {
	w := &Watchlist{
		logger:    logger.Named("watchlist"),
		path:      cfg.File,
		maxSize:   cfg.MaxSize,
		validator: validator,
		symbols:   make(map[string]struct{}),
	}
	if w.maxSize <= 0 {
		w.maxSize = types.DefaultWatchlistConfig().MaxSize
	}

	raw, err := os.ReadFile(w.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		w.setDefaults(cfg.Defaults)
		if err := w.saveLocked(); err != nil {
			return nil, err
		}
		return w, nil
	case err != nil:
		w.logger.Warn("Failed to read watchlist, using defaults", zap.Error(err))
		w.setDefaults(cfg.Defaults)
		return w, nil
	}

	var stored fileFormat
	if err := json.Unmarshal(raw, &stored); err != nil {
		w.logger.Warn("Corrupt watchlist file, using defaults", zap.String("path", w.path), zap.Error(err))
		w.setDefaults(cfg.Defaults)
		return w, nil
	}
	for _, s := range stored.Symbols {
		if s = utils.FormatSymbol(s); s != "" {
			w.symbols[s] = struct{}{}
		}
	}

	w.logger.Info("Watchlist loaded", zap.Int("symbols", len(w.symbols)))
	return w, nil
}

func (w *Watchlist) setDefaults(defaults []string) {
	for _, s := range defaults {
		w.symbols[utils.FormatSymbol(s)] = struct{}{}
	}
}

func (w *Watchlist) sortedLocked() []string {
	out := make([]string, 0, len(w.symbols))
	for s := range w.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (w *Watchlist) saveLocked() error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watchlist dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(fileFormat{Symbols: w.sortedLocked()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(w.path, raw, 0o644); err != nil {
		return fmt.Errorf("write watchlist: %w", err)
	}
	return nil
}

// MaxSize is the most symbols the list accepts
func (w *Watchlist) MaxSize() int { return w.maxSize }

// List returns the watched symbols in alphabetical order
func (w *Watchlist) List() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedLocked()
}

// Contains reports whether symbol is watched
func (w *Watchlist) Contains(symbol string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.symbols[utils.FormatSymbol(symbol)]
	return ok
}

// Validate checks the symbol shape and asks the validator, if any.
func (w *Watchlist) Validate(ctx context.Context, symbol string) error {
	symbol = utils.FormatSymbol(symbol)
	if symbol == "" || len(symbol) > maxSymbolLength {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if w.validator == nil {
		return nil
	}
	return w.validator.Validate(ctx, symbol)
}

// Add validates and watches symbol, then persists the list.
func (w *Watchlist) Add(ctx context.Context, symbol string) error {
	symbol = utils.FormatSymbol(symbol)

	w.mu.Lock()
	_, exists := w.symbols[symbol]
	full := len(w.symbols) >= w.maxSize
	w.mu.Unlock()

	if full {
		return fmt.Errorf("%w: maximum %d symbols", ErrWatchlistFull, w.maxSize)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyWatched, symbol)
	}
	if err := w.Validate(ctx, symbol); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Re-check after validation, which may have been slow.
	if _, ok := w.symbols[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyWatched, symbol)
	}
	if len(w.symbols) >= w.maxSize {
		return fmt.Errorf("%w: maximum %d symbols", ErrWatchlistFull, w.maxSize)
	}
	w.symbols[symbol] = struct{}{}
	if err := w.saveLocked(); err != nil {
		delete(w.symbols, symbol)
		return err
	}

	w.logger.Info("Symbol added", zap.String("symbol", symbol))
	return nil
}

// Remove stops watching symbol and persists the list.
func (w *Watchlist) Remove(symbol string) error {
	symbol = utils.FormatSymbol(symbol)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.symbols[symbol]; !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, symbol)
	}
	delete(w.symbols, symbol)
	if err := w.saveLocked(); err != nil {
		w.symbols[symbol] = struct{}{}
		return err
	}

	w.logger.Info("Symbol removed", zap.String("symbol", symbol))
	return nil
}
