package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/logger"
)

const weekendReason = "weekend"

// Holiday is one entry of the public holiday feed.
type Holiday struct {
	Date     string // YYYYMMDD
	Name     string
	Category string
	Closed   bool
}

// TradingCalendar combines the weekday rule, statically configured holidays
// and an optional government holiday CSV feed.
type TradingCalendar struct {
	client   *resty.Client
	feedURL  string
	location *time.Location
	static   map[string]bool
	working  map[string]bool
	log      *logger.Logger

	mu      sync.Mutex
	feed    map[string]Holiday
	feedDay string // day key the feed was last fetched for
}

// CalendarOptions configures a TradingCalendar.
type CalendarOptions struct {
	FeedURL         string
	Holidays        []string // YYYY-MM-DD
	WorkingHolidays []string // holiday names on which the market still trades
	Location        *time.Location
	Client          ClientOptions
}

// NewTradingCalendar creates a calendar. An empty FeedURL disables the feed.
func NewTradingCalendar(opts CalendarOptions, log *logger.Logger) *TradingCalendar {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &TradingCalendar{
		client:   NewClient(opts.Client),
		feedURL:  opts.FeedURL,
		location: loc,
		static:   make(map[string]bool),
		working:  make(map[string]bool),
		log:      log,
	}
	for _, d := range opts.Holidays {
		c.static[strings.ReplaceAll(d, "-", "")] = true
	}
	for _, n := range opts.WorkingHolidays {
		c.working[strings.TrimSpace(n)] = true
	}
	return c
}

// IsTradingDay reports whether the market is open on date.
// Feed failures fall back to the weekday rule and never fail the check.
func (c *TradingCalendar) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	return c.ClosureReason(ctx, date) == "", nil
}

// ClosureReason returns why the market is closed on date, or "" when it is open.
func (c *TradingCalendar) ClosureReason(ctx context.Context, date time.Time) string {
	date = date.In(c.location)
	key := date.Format("20060102")

	if c.static[key] {
		return "holiday"
	}
	if h, ok := c.feedHoliday(ctx, key); ok && h.Closed && !c.working[h.Name] {
		name := h.Name
		if name == "" {
			name = "holiday"
		}
		if h.Category != "" {
			name = fmt.Sprintf("%s (%s)", name, h.Category)
		}
		return name
	}
	if isWeekend(date) {
		return weekendReason
	}
	return ""
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// feedHoliday looks key up in the holiday feed. The feed is fetched at most once
// per checked day; a failed fetch leaves that day on the weekday rule and is
// retried on the next day checked.
func (c *TradingCalendar) feedHoliday(ctx context.Context, key string) (Holiday, bool) {
	if c.feedURL == "" {
		return Holiday{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedDay != key {
		c.feedDay = key
		feed, err := c.fetch(ctx)
		if err != nil {
			c.log.Warn("holiday feed unavailable, using weekday rule", logger.String("date", key), logger.Error(err))
			c.feed = nil
		} else {
			c.feed = feed
		}
	}
	h, ok := c.feed[key]
	return h, ok
}

func (c *TradingCalendar) fetch(ctx context.Context) (map[string]Holiday, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch holidays: status %d", resp.StatusCode())
	}
	return ParseHolidayCSV(bytes.NewReader(resp.Body()))
}

// ParseHolidayCSV reads the holiday feed. The header must name the
// date, isholiday, name and holidaycategory columns; a UTF-8 BOM is tolerated.
func ParseHolidayCSV(r io.Reader) (map[string]Holiday, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read holiday header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	dateCol, ok := col["date"]
	if !ok {
		return nil, errors.New("holiday feed: missing date column")
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make(map[string]Holiday)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read holiday row: %w", err)
		}
		if dateCol >= len(rec) {
			continue
		}
		date := strings.TrimSpace(rec[dateCol])
		out[date] = Holiday{
			Date:     date,
			Name:     field(rec, "name"),
			Category: field(rec, "holidaycategory"),
			Closed:   field(rec, "isholiday") == "是",
		}
	}
	return out, nil
}
