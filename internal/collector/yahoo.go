package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/model"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooHistory implements HistorySource using the Yahoo Finance chart API.
type YahooHistory struct {
	client   *resty.Client
	baseURL  string
	suffix   string
	location *time.Location
}

// NewYahooHistory creates a Yahoo history source. suffix is appended to
// instrument IDs without one (".TW" for the Taiwan exchange).
func NewYahooHistory(opts ClientOptions, suffix string, loc *time.Location) *YahooHistory {
	if loc == nil {
		loc = time.UTC
	}
	return &YahooHistory{
		client:   NewClient(opts),
		baseURL:  yahooChartURL,
		suffix:   suffix,
		location: loc,
	}
}

// WithBaseURL points the source at another chart endpoint.
func (y *YahooHistory) WithBaseURL(u string) *YahooHistory {
	y.baseURL = strings.TrimRight(u, "/") + "/"
	return y
}

func (y *YahooHistory) Name() string { return "yahoo" }

func (y *YahooHistory) ticker(id string) string {
	if y.suffix == "" || strings.Contains(id, ".") {
		return id
	}
	return id + y.suffix
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

func yahooRange(days int) string {
	switch {
	case days <= 15:
		return "1mo"
	case days <= 45:
		return "3mo"
	case days <= 90:
		return "6mo"
	case days <= 180:
		return "1y"
	default:
		return "2y"
	}
}

// PriceHistory fetches daily bars through the given day. Bars with a missing
// OHLC field are skipped; a missing volume is recorded as zero.
func (y *YahooHistory) PriceHistory(ctx context.Context, id string, through time.Time, days int) ([]model.PriceBar, error) {
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"interval": "1d",
			"range":    yahooRange(days),
		}).
		Get(y.baseURL + y.ticker(id))
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w: %w", id, model.ErrDataUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("yahoo %s: status %d: %w", id, resp.StatusCode(), model.ErrDataUnavailable)
	}

	var chart yahooChart
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode %s: %w: %w", id, model.ErrDataUnavailable, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error %s: %s: %w", id, chart.Chart.Error.Description, model.ErrDataUnavailable)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: no data returned: %w", id, model.ErrDataUnavailable)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, ok1 := at(quote.Open, i)
		h, ok2 := at(quote.High, i)
		l, ok3 := at(quote.Low, i)
		c, ok4 := at(quote.Close, i)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		v, _ := at(quote.Volume, i)
		bars = append(bars, model.PriceBar{
			Date:   startOfDay(time.Unix(ts, 0), y.location),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo %s: no bars: %w", id, model.ErrDataUnavailable)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return trimThrough(bars, through, days), nil
}
