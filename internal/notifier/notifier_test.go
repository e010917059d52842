package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
	"StockSentinel/internal/strategy"
)

var day = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

func signalBatch() *model.AdvisoryBatch {
	return &model.AdvisoryBatch{
		AsOf: day,
		Decisions: []model.AdvisoryDecision{
			{InstrumentID: "2330", Name: "台積電", Action: model.ActionBuy, PERatio: 15.2, PEAvailable: true, J: 4.56, JDefined: true, VolumeAnomaly: true},
			{InstrumentID: "2317", Name: "鴻海", Action: model.ActionNone, PERatio: 12, PEAvailable: true, J: 40, JDefined: true},
			{InstrumentID: "2454", Name: "聯發科", Action: model.ActionSell, PERatio: 45, PEAvailable: true, J: 101.25, JDefined: true},
		},
		Summary: model.RunSummary{Total: 3, Buy: 1, Sell: 1, None: 1},
	}
}

func TestFormatBatch_Signals(t *testing.T) {
	got := FormatBatch(signalBatch(), strategy.DefaultConfig())
	want := strings.Join([]string{
		"🔴 買進建議",
		"台積電 2330 * (PE: 15.2, J: 4.6)",
		"",
		"🔵 賣出建議",
		"聯發科 2454 (PE: 45, J: 101.2)",
		"",
		VolumeLegend,
	}, "\n")
	assert.Equal(t, want, got)
}

func TestFormatBatch_NoLegendWithoutMarker(t *testing.T) {
	b := signalBatch()
	b.Decisions[0].VolumeAnomaly = false
	got := FormatBatch(b, strategy.DefaultConfig())
	assert.NotContains(t, got, VolumeLegend)
	assert.NotContains(t, got, " *")
}

func TestFormatBatch_BuysOnly(t *testing.T) {
	b := signalBatch()
	b.Decisions = b.Decisions[:1]
	got := FormatBatch(b, strategy.DefaultConfig())
	assert.Equal(t, "🔴 買進建議\n台積電 2330 * (PE: 15.2, J: 4.6)\n\n"+VolumeLegend, got)
}

func TestFormatBatch_NoAdvice(t *testing.T) {
	b := &model.AdvisoryBatch{AsOf: day, Summary: model.RunSummary{Total: 950, None: 950}}

	level := FormatBatch(b, strategy.DefaultConfig())
	assert.Contains(t, level, "📊 股票分析完成 (2025-10-01)")
	assert.Contains(t, level, "今日無符合條件的買賣建議")
	assert.Contains(t, level, "• 買進: J<10 且 PE<20")
	assert.Contains(t, level, "• 賣出: J>90 且 PE>40")
	assert.Contains(t, level, "• 總計分析: 950 檔股票")

	cfg := strategy.DefaultConfig()
	cfg.SignalMode = strategy.ModeCrossover
	cross := FormatBatch(b, cfg)
	assert.Contains(t, cross, "• 買進: 昨日J>10→今日J<10 且 PE<20")
	assert.Contains(t, cross, "• 賣出: 昨日J<90→今日J>90 且 PE>40")
}

func TestFormatBatch_MarketClosed(t *testing.T) {
	b := &model.AdvisoryBatch{AsOf: day, Skipped: true, SkipReason: "中秋節 (放假之紀念日及節日)"}
	assert.Equal(t, "📅 台股休市通知\n\n今天是中秋節 (放假之紀念日及節日)，因此沒有開盤，交易暫停一日。",
		FormatBatch(b, strategy.DefaultConfig()))
}

func TestFormatSummaryAndConfig(t *testing.T) {
	assert.Equal(t, "尚無執行紀錄", FormatSummary(nil))

	s := FormatSummary(signalBatch())
	assert.Contains(t, s, "總計分析: 3 檔")
	assert.Contains(t, s, "台積電 2330")

	c := FormatConfig(strategy.DefaultConfig())
	assert.Contains(t, c, "KDJ 週期: 9")
	assert.Contains(t, c, "成交量倍數: 2.0")
}

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	last     string
}

func (f *flakySender) Name() string { return "flaky" }

func (f *flakySender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("temporary")
	}
	f.last = text
	return nil
}

func TestSendWithRetry(t *testing.T) {
	retryBase = time.Millisecond
	t.Cleanup(func() { retryBase = time.Second })
	ctx := context.Background()

	s := &flakySender{failures: 2}
	require.NoError(t, SendWithRetry(ctx, s, "hi", 3, logger.Nop()))
	assert.Equal(t, 3, s.calls)

	s = &flakySender{failures: 10}
	err := SendWithRetry(ctx, s, "hi", 2, logger.Nop())
	assert.Error(t, err)
	assert.Equal(t, 3, s.calls)
}

func TestDispatcher(t *testing.T) {
	s := &flakySender{}
	d := &Dispatcher{Sender: s, Strategy: strategy.DefaultConfig(), QuietOnHoliday: true}

	require.NoError(t, d.Emit(context.Background(), &model.AdvisoryBatch{AsOf: day, Skipped: true, SkipReason: "weekend"}))
	assert.Equal(t, 0, s.calls)

	require.NoError(t, d.Emit(context.Background(), signalBatch()))
	assert.Equal(t, 1, s.calls)
	assert.Contains(t, s.last, "🔴 買進建議")
	assert.Equal(t, "notifier:flaky", d.Name())
}

func TestLineNotifier_Send(t *testing.T) {
	var got linePush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewLineNotifier(resty.New(), srv.URL, "tok", "U1")
	require.NoError(t, n.Send(context.Background(), "hello"))
	assert.Equal(t, linePush{To: "U1", Messages: []lineMessage{{Type: "text", Text: "hello"}}}, got)
}

func TestLineNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewLineNotifier(resty.New(), srv.URL, "bad", "U1").Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTelegramNotifier_PollingAnswersCommands(t *testing.T) {
	pollRetryDelay = time.Millisecond
	t.Cleanup(func() { pollRetryDelay = 5 * time.Second })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		polls   int
		replies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/botT/getUpdates":
			mu.Lock()
			polls++
			first := polls == 1
			mu.Unlock()
			if first {
				_, _ = w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/last","chat":{"id":99}}},
					{"update_id":8,"message":{"text":"/run","chat":{"id":12345}}}]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		case "/botT/sendMessage":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
			cancel()
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(resty.New(), srv.URL, "T", "12345")
	done := make(chan struct{})
	go func() {
		tg.StartPolling(ctx, func(_ context.Context, cmd string) string { return "ack " + cmd }, logger.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ack /run"}, replies, "commands from other chats are ignored")
}
