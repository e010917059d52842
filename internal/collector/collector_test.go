package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/model"
)

var oct1 = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC) // Wednesday

func TestYahooHistory_ParsesAndTrims(t *testing.T) {
	var gotPath, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		ts := func(d int) int64 { return oct1.AddDate(0, 0, d).Add(time.Hour).Unix() }
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d,%d,%d,%d],
			"indicators":{"quote":[{
				"open":[10,null,11,12],"high":[11,12,12,13],"low":[9,9,10,11],
				"close":[10.5,11,11.5,12.5],"volume":[100,200,null,400]}]}}],"error":null}}`,
			ts(-2), ts(-1), ts(0), ts(1))
	}))
	defer srv.Close()

	y := NewYahooHistory(ClientOptions{Timeout: time.Second}, ".TW", time.UTC).WithBaseURL(srv.URL)
	bars, err := y.PriceHistory(context.Background(), "2330", oct1, 30)
	require.NoError(t, err)

	assert.Equal(t, "/2330.TW", gotPath)
	assert.Equal(t, "3mo", gotRange)
	require.Len(t, bars, 2, "null open skipped, future bar trimmed")
	assert.Equal(t, oct1.AddDate(0, 0, -2), bars[0].Date)
	assert.Equal(t, oct1, bars[1].Date)
	assert.Equal(t, 0.0, bars[1].Volume)
}

func TestYahooHistory_ErrorsAreDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	y := NewYahooHistory(ClientOptions{Timeout: time.Second}, ".TW", time.UTC).WithBaseURL(srv.URL)
	_, err := y.PriceHistory(context.Background(), "2330", oct1, 30)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestRESTHistory_SendsQueryAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bars/daily", r.URL.Path)
		assert.Equal(t, "2317", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "2025-10-01", r.URL.Query().Get("end"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		bars := []restBar{
			{Timestamp: oct1.Unix(), Open: 3, High: 4, Low: 2, Close: 3, Volume: 30},
			{Timestamp: oct1.AddDate(0, 0, -2).Unix(), Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
			{Timestamp: oct1.AddDate(0, 0, -1).Unix(), Open: 2, High: 3, Low: 1, Close: 2, Volume: 20},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bars)
	}))
	defer srv.Close()

	r := NewRESTHistory(srv.URL+"/", "secret", ClientOptions{Timeout: time.Second}, time.UTC)
	bars, err := r.PriceHistory(context.Background(), "2317", oct1, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 20.0, bars[0].Volume)
	assert.Equal(t, 30.0, bars[1].Volume)
}

func TestParsePE(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"15.32", 15.32, true},
		{" 8 ", 8, true},
		{"1,234.5", 1234.5, true},
		{"0", 0, true},
		{"", 0, false},
		{"-", 0, false},
		{"N/A", 0, false},
		{"-3.2", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePE(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestTWSEValuation_LoadsOncePerDay(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"Code":"2330","Name":"台積電","PEratio":"18.50","DividendYield":"1.5","PBratio":"5.1"},
			{"Code":"2317","Name":"鴻海","PEratio":""},
			{"Code":"1101","Name":"台泥","PEratio":"-"}
		]`))
	}))
	defer srv.Close()

	v := NewTWSEValuation(srv.URL, ClientOptions{Timeout: time.Second})
	ctx := context.Background()

	rec, err := v.Valuation(ctx, "2330", oct1)
	require.NoError(t, err)
	assert.True(t, rec.Available)
	assert.Equal(t, "台積電", rec.Name)
	assert.InDelta(t, 18.5, rec.PERatio, 1e-9)

	rec, err = v.Valuation(ctx, "2317", oct1)
	require.NoError(t, err)
	assert.False(t, rec.Available)
	assert.Equal(t, "鴻海", rec.Name)

	rec, err = v.Valuation(ctx, "9999", oct1)
	require.NoError(t, err)
	assert.False(t, rec.Available)

	list, err := v.Instruments(ctx, oct1)
	require.NoError(t, err)
	assert.Equal(t, []model.Instrument{{ID: "2330", Name: "台積電"}, {ID: "2317", Name: "鴻海"}, {ID: "1101", Name: "台泥"}}, list)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = v.Valuation(ctx, "2330", oct1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestTWSEValuation_FeedFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewTWSEValuation(srv.URL, ClientOptions{Timeout: time.Second})
	ctx := context.Background()
	for _, id := range []string{"2330", "2317", "1101", "2454", "2881"} {
		rec, err := v.Valuation(ctx, id, oct1)
		assert.ErrorIs(t, err, model.ErrDataUnavailable)
		assert.False(t, rec.Available)
	}
	_, err := v.Instruments(ctx, oct1)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "one failed fetch per day")

	_, err = v.Valuation(ctx, "2330", oct1.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "next day tries again")
}

func TestTWSEValuation_RecoversNextDay(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Code":"2330","Name":"台積電","PEratio":"18.50"}]`))
	}))
	defer srv.Close()

	v := NewTWSEValuation(srv.URL, ClientOptions{Timeout: time.Second})
	_, err := v.Valuation(context.Background(), "2330", oct1)
	require.Error(t, err)

	rec, err := v.Valuation(context.Background(), "2330", oct1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, rec.Available)
}

const holidayCSV = "\ufeffdate,year,name,isholiday,holidaycategory,description\n" +
	"20251001,2025,,否,,\n" +
	"20251006,2025,中秋節,是,放假之紀念日及節日,\n" +
	"20250903,2025,軍人節,是,特定節日,\n" +
	"20251004,2025,,是,星期六、星期日,\n"

func TestParseHolidayCSV(t *testing.T) {
	h, err := ParseHolidayCSV(strings.NewReader(holidayCSV))
	require.NoError(t, err)
	require.Len(t, h, 4)
	assert.Equal(t, Holiday{Date: "20251006", Name: "中秋節", Category: "放假之紀念日及節日", Closed: true}, h["20251006"])
	assert.False(t, h["20251001"].Closed)

	_, err = ParseHolidayCSV(strings.NewReader("foo,bar\n1,2\n"))
	assert.Error(t, err)
}

func TestTradingCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(holidayCSV))
	}))
	defer srv.Close()

	cal := NewTradingCalendar(CalendarOptions{
		FeedURL:         srv.URL,
		Holidays:        []string{"2025-10-10"},
		WorkingHolidays: []string{"軍人節"},
		Location:        time.UTC,
	}, nil)
	ctx := context.Background()
	day := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 9, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		date   time.Time
		reason string
	}{
		{"plain weekday", day(10, 1), ""},
		{"feed holiday", day(10, 6), "中秋節 (放假之紀念日及節日)"},
		{"working holiday", day(9, 3), ""},
		{"feed weekend", day(10, 4), "holiday (星期六、星期日)"},
		{"weekend not in feed", day(10, 5), "weekend"},
		{"static holiday", day(10, 10), "holiday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, cal.ClosureReason(ctx, tt.date))
			open, err := cal.IsTradingDay(ctx, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.reason == "", open)
		})
	}
}

func TestTradingCalendar_FeedFailureFallsBackToWeekdays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cal := NewTradingCalendar(CalendarOptions{FeedURL: srv.URL, Location: time.UTC}, nil)
	open, err := cal.IsTradingDay(context.Background(), oct1.AddDate(0, 0, 5)) // Monday 2025-10-06
	require.NoError(t, err)
	assert.True(t, open)

	open, err = cal.IsTradingDay(context.Background(), oct1.AddDate(0, 0, 3)) // Saturday
	require.NoError(t, err)
	assert.False(t, open)
}

func TestTradingCalendar_RetriesFeedAfterFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(holidayCSV))
	}))
	defer srv.Close()

	cal := NewTradingCalendar(CalendarOptions{FeedURL: srv.URL, Location: time.UTC}, nil)
	ctx := context.Background()

	open, err := cal.IsTradingDay(ctx, oct1)
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "", cal.ClosureReason(ctx, oct1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "same day checks share one fetch")

	mid := oct1.AddDate(0, 0, 5) // 中秋節
	open, err = cal.IsTradingDay(ctx, mid)
	require.NoError(t, err)
	assert.False(t, open)
	assert.Equal(t, "中秋節 (放假之紀念日及節日)", cal.ClosureReason(ctx, mid))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func (m *mapCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, false, errors.New("down")
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *mapCache) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("down")
	}
	m.data[key] = value
	return nil
}

func TestCachedHistory(t *testing.T) {
	mem := NewMemorySource()
	mem.History["2330"] = GenerateBars(600, 20, oct1)
	cache := &mapCache{data: map[string][]byte{}}
	h := NewCachedHistory(mem, cache, time.Hour, "test", nil)
	ctx := context.Background()

	first, err := h.PriceHistory(ctx, "2330", oct1, 15)
	require.NoError(t, err)
	second, err := h.PriceHistory(ctx, "2330", oct1, 15)
	require.NoError(t, err)

	assert.Equal(t, 1, mem.Calls["2330"])
	require.Len(t, second, 15)
	for i := range first {
		assert.True(t, first[i].Date.Equal(second[i].Date))
		assert.Equal(t, first[i].Close, second[i].Close)
	}
	assert.Contains(t, cache.data, "test:history:memory:2330:2025-10-01:15")

	cache.fail = true
	_, err = h.PriceHistory(ctx, "2330", oct1, 15)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Calls["2330"])

	_, err = h.PriceHistory(ctx, "0000", oct1, 15)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestRateLimitedHistory(t *testing.T) {
	mem := NewMemorySource()
	mem.History["2330"] = GenerateBars(600, 10, oct1)
	h := NewRateLimitedHistory(mem, 1000)

	bars, err := h.PriceHistory(context.Background(), "2330", oct1, 30)
	require.NoError(t, err)
	assert.Len(t, bars, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.PriceHistory(ctx, "2330", oct1, 30)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestTrimThrough(t *testing.T) {
	bars := GenerateBars(100, 5, oct1.AddDate(0, 0, 2))
	got := trimThrough(bars, oct1.Add(15*time.Hour), 0)
	require.Len(t, got, 3)
	assert.Equal(t, oct1, got[2].Date)
}
