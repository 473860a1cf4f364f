package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
	"github.com/atlas-desktop/crossover-trader/pkg/utils"
)

const defaultYahooURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooSource fetches daily bars from the public chart endpoint.
type YahooSource struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

// NewYahooSource creates a chart API client
func NewYahooSource(logger *zap.Logger, timeout time.Duration) *YahooSource {
	return &YahooSource{
		logger:  logger.Named("yahoo"),
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultYahooURL,
	}
}

// WithBaseURL points the client at another chart endpoint
func (y *YahooSource) WithBaseURL(base string) *YahooSource {
	y.baseURL = base
	return y
}

// Name identifies the provider in quotes
func (y *YahooSource) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchBars implements BarFetcher
func (y *YahooSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]types.PriceBar, error) {
	symbol = utils.FormatSymbol(symbol)

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	endpoint := y.baseURL + url.PathEscape(symbol) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w for symbol: %s", ErrNoData, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request returned %s", resp.Status)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if body.Chart.Error != nil {
		return nil, fmt.Errorf("%w for symbol %s: %s", ErrNoData, symbol, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w for symbol: %s", ErrNoData, symbol)
	}

	result := body.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]types.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := types.PriceBar{
			Date:  utils.TruncateDay(time.Unix(ts, 0)),
			Open:  fromPtr(quote.Open, i),
			High:  fromPtr(quote.High, i),
			Low:   fromPtr(quote.Low, i),
			Close: decimal.NewFromFloat(*quote.Close[i]).Round(4),
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}

	y.logger.Debug("Fetched bars", zap.String("symbol", symbol), zap.Int("bars", len(bars)))
	return bars, nil
}

func fromPtr(values []*float64, i int) decimal.Decimal {
	if i >= len(values) || values[i] == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*values[i]).Round(4)
}
