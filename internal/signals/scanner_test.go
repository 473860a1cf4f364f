package signals_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/signals"
	"github.com/atlas-desktop/crossover-trader/internal/workers"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

type mapSource map[string][]types.PriceBar

func (m mapSource) GetBars(_ context.Context, symbol string, _ int) ([]types.PriceBar, error) {
	bars, ok := m[symbol]
	if !ok {
		return nil, errors.New("no data found")
	}
	return bars, nil
}

func TestScanAllSkipsFailures(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), workers.DefaultPoolConfig("scan-test"))
	pool.Start()
	defer func() { _ = pool.Stop() }()

	src := mapSource{
		"MSFT": barsOf(deathCloses...),
		"AAPL": barsOf(goldenCloses...),
	}
	scanner := signals.NewScanner(zap.NewNop(), newDetector(t, 3), src, pool, 365)

	summary := scanner.ScanAll(context.Background(), []string{"msft", "BAD", "aapl"})
	require.Len(t, summary.Signals, 2)
	assert.Equal(t, "AAPL", summary.Signals[0].Symbol)
	assert.True(t, summary.Signals[0].ActionableBuy)
	assert.Equal(t, "MSFT", summary.Signals[1].Symbol)
	assert.True(t, summary.Signals[1].ActionableSell)
	assert.False(t, summary.LastUpdated.IsZero())

	latest, ok := scanner.Latest("aapl")
	require.True(t, ok)
	assert.Equal(t, types.SignalTypeGoldenCross, latest.SignalType)

	_, ok = scanner.Latest("BAD")
	assert.False(t, ok)
}
