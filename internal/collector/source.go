package collector

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
)

// HistorySource supplies daily bars, ascending by date, ending no later than through.
type HistorySource interface {
	PriceHistory(ctx context.Context, id string, through time.Time, days int) ([]model.PriceBar, error)
	Name() string
}

// ValuationSource supplies the PE record of an instrument for a trading day.
// A missing or unusable figure is an unavailable record, not an error.
type ValuationSource interface {
	Valuation(ctx context.Context, id string, asOf time.Time) (model.ValuationRecord, error)
}

// UniverseSource lists every instrument a feed knows about.
type UniverseSource interface {
	Instruments(ctx context.Context, asOf time.Time) ([]model.Instrument, error)
}

// Calendar decides whether the market is open on a date.
type Calendar interface {
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
}

// ClosureNamer is implemented by calendars that can name a closure.
type ClosureNamer interface {
	ClosureReason(ctx context.Context, date time.Time) string
}

// ClientOptions configures the shared resty client.
type ClientOptions struct {
	Timeout time.Duration
	Proxy   string
	Log     *logger.Logger
}

// NewClient builds a resty client with the shared timeout, proxy and logger settings.
func NewClient(opts ClientOptions) *resty.Client {
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}
	if opts.Log != nil {
		client.SetLogger(opts.Log)
	}
	client.SetHeader("User-Agent", "Mozilla/5.0")
	return client
}

// startOfDay truncates t to midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// trimThrough keeps bars dated on or before through and returns at most the last days of them.
func trimThrough(bars []model.PriceBar, through time.Time, days int) []model.PriceBar {
	end := len(bars)
	for end > 0 && bars[end-1].Date.After(through) && !model.SameDay(bars[end-1].Date, through) {
		end--
	}
	bars = bars[:end]
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars
}
