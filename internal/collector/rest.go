package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/model"
)

// RESTHistory implements HistorySource against a bar service exposing
// GET {base}/api/v1/bars/daily?symbol=&limit=&end=.
type RESTHistory struct {
	client   *resty.Client
	baseURL  string
	apiKey   string
	location *time.Location
}

// NewRESTHistory creates a history source for a generic bar service.
func NewRESTHistory(baseURL, apiKey string, opts ClientOptions, loc *time.Location) *RESTHistory {
	if loc == nil {
		loc = time.UTC
	}
	return &RESTHistory{
		client:   NewClient(opts),
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		location: loc,
	}
}

func (r *RESTHistory) Name() string { return "rest" }

type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (r *RESTHistory) PriceHistory(ctx context.Context, id string, through time.Time, days int) ([]model.PriceBar, error) {
	req := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": id,
			"limit":  strconv.Itoa(days),
			"end":    model.DateKey(through),
		})
	if r.apiKey != "" {
		req.SetAuthToken(r.apiKey)
	}
	resp, err := req.Get(r.baseURL + "/api/v1/bars/daily")
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w: %w", id, model.ErrDataUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch bars %s: status %d, body: %s: %w", id, resp.StatusCode(), resp.String(), model.ErrDataUnavailable)
	}

	var raw []restBar
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode bars %s: %w: %w", id, model.ErrDataUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("fetch bars %s: empty response: %w", id, model.ErrDataUnavailable)
	}

	bars := make([]model.PriceBar, len(raw))
	for i, b := range raw {
		bars[i] = model.PriceBar{
			Date:   startOfDay(time.Unix(b.Timestamp, 0), r.location),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return trimThrough(bars, through, days), nil
}
