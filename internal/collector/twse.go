package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"StockSentinel/internal/model"
)

// TWSEValuation reads PE ratios from the exchange's BWIBBU_ALL open data feed.
// The feed is fetched once per trading day and shared by every lookup of that day.
type TWSEValuation struct {
	client *resty.Client
	url    string

	mu        sync.Mutex
	day       string
	byCode    map[string]model.ValuationRecord
	order     []model.Instrument
	failedDay string
	failErr   error
}

// NewTWSEValuation creates a valuation source for the given feed URL.
func NewTWSEValuation(url string, opts ClientOptions) *TWSEValuation {
	return &TWSEValuation{client: NewClient(opts), url: url}
}

type twseRow struct {
	Code    string `json:"Code"`
	Name    string `json:"Name"`
	PERatio string `json:"PEratio"`
}

// ParsePE converts a feed PE string. Blank, "-" and non-numeric values are unavailable,
// as are negative figures.
func ParsePE(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func (t *TWSEValuation) load(ctx context.Context, asOf time.Time) error {
	key := model.DateKey(asOf)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.day == key && t.byCode != nil {
		return nil
	}
	// A failed fetch is remembered for the rest of its day.
	if t.failedDay == key {
		return t.failErr
	}

	rows, err := t.fetch(ctx)
	if err != nil {
		t.failedDay, t.failErr = key, err
		return err
	}

	byCode := make(map[string]model.ValuationRecord, len(rows))
	order := make([]model.Instrument, 0, len(rows))
	for _, r := range rows {
		code := strings.TrimSpace(r.Code)
		if code == "" {
			continue
		}
		if _, dup := byCode[code]; dup {
			continue
		}
		name := strings.TrimSpace(r.Name)
		pe, ok := ParsePE(r.PERatio)
		byCode[code] = model.ValuationRecord{
			InstrumentID: code,
			Name:         name,
			PERatio:      pe,
			Available:    ok,
			AsOf:         asOf,
		}
		order = append(order, model.Instrument{ID: code, Name: name})
	}

	t.day, t.byCode, t.order = key, byCode, order
	t.failedDay, t.failErr = "", nil
	return nil
}

func (t *TWSEValuation) fetch(ctx context.Context) ([]twseRow, error) {
	resp, err := t.client.R().SetContext(ctx).Get(t.url)
	if err != nil {
		return nil, fmt.Errorf("fetch pe feed: %w: %w", model.ErrDataUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch pe feed: status %d: %w", resp.StatusCode(), model.ErrDataUnavailable)
	}
	var rows []twseRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("decode pe feed: %w: %w", model.ErrDataUnavailable, err)
	}
	return rows, nil
}

// Valuation returns the instrument's record; instruments absent from the feed are unavailable.
func (t *TWSEValuation) Valuation(ctx context.Context, id string, asOf time.Time) (model.ValuationRecord, error) {
	if err := t.load(ctx, asOf); err != nil {
		return model.UnavailableValuation(id, asOf), err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byCode[id]
	if !ok {
		return model.UnavailableValuation(id, asOf), nil
	}
	return rec, nil
}

// Instruments lists the feed's instruments in feed order.
func (t *TWSEValuation) Instruments(ctx context.Context, asOf time.Time) ([]model.Instrument, error) {
	if err := t.load(ctx, asOf); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Instrument, len(t.order))
	copy(out, t.order)
	return out, nil
}
