package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/crossover-trader/internal/metrics"
)

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(metrics.PaperTrades.WithLabelValues("buy"))
	metrics.PaperTrades.WithLabelValues("buy").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PaperTrades.WithLabelValues("buy")))

	metrics.PortfolioValue.Set(10250.5)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crossover_paper_trades_total")
	assert.Contains(t, rec.Body.String(), "crossover_portfolio_value 10250.5")
}
