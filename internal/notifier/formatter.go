package notifier

import (
	"fmt"
	"strconv"
	"strings"

	"StockSentinel/internal/model"
	"StockSentinel/internal/strategy"
)

// VolumeLegend explains the volume anomaly marker.
const VolumeLegend = "* 表示成交量異常放大"

// TestMessage is sent by the notify-test command.
const TestMessage = "📈 股票分析系統測試訊息"

// FormatBatch renders a batch as the daily notification text.
func FormatBatch(batch *model.AdvisoryBatch, cfg strategy.Config) string {
	if batch.Skipped {
		return FormatMarketClosed(batch.SkipReason)
	}
	buys, sells := batch.Signals()
	if len(buys) == 0 && len(sells) == 0 {
		return FormatNoAdvice(batch, cfg)
	}

	var parts []string
	marked := false
	section := func(title string, ds []model.AdvisoryDecision) {
		parts = append(parts, title)
		for _, d := range ds {
			parts = append(parts, decisionLine(d))
			marked = marked || d.VolumeAnomaly
		}
	}
	if len(buys) > 0 {
		section("🔴 買進建議", buys)
	}
	if len(sells) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		section("🔵 賣出建議", sells)
	}
	if marked {
		parts = append(parts, "", VolumeLegend)
	}
	return strings.Join(parts, "\n")
}

func decisionLine(d model.AdvisoryDecision) string {
	line := strings.TrimSpace(d.Name + " " + d.InstrumentID)
	if d.VolumeAnomaly {
		line += " *"
	}
	var details []string
	if d.PEAvailable {
		details = append(details, "PE: "+strconv.FormatFloat(d.PERatio, 'f', -1, 64))
	}
	if d.JDefined {
		details = append(details, fmt.Sprintf("J: %.1f", d.J))
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}

// FormatNoAdvice is sent when a run produced no buy or sell.
func FormatNoAdvice(batch *model.AdvisoryBatch, cfg strategy.Config) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 股票分析完成 (%s)\n\n", model.DateKey(batch.AsOf)))
	b.WriteString("今日無符合條件的買賣建議\n\n")
	b.WriteString(Conditions(cfg))
	b.WriteString(fmt.Sprintf("\n• 總計分析: %d 檔股票", batch.Summary.Total))
	return b.String()
}

// Conditions describes the active buy and sell rules.
func Conditions(cfg strategy.Config) string {
	pe := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	if cfg.SignalMode == strategy.ModeCrossover {
		return fmt.Sprintf("分析條件 (趨勢突破):\n• 買進: 昨日J>%s→今日J<%s 且 PE<%s\n• 賣出: 昨日J<%s→今日J>%s 且 PE>%s",
			pe(cfg.BuyJ), pe(cfg.BuyJ), pe(cfg.BuyPE), pe(cfg.SellJ), pe(cfg.SellJ), pe(cfg.SellPE))
	}
	return fmt.Sprintf("分析條件:\n• 買進: J<%s 且 PE<%s\n• 賣出: J>%s 且 PE>%s",
		pe(cfg.BuyJ), pe(cfg.BuyPE), pe(cfg.SellJ), pe(cfg.SellPE))
}

// FormatMarketClosed is sent instead of advice on a non-trading day.
func FormatMarketClosed(reason string) string {
	if reason == "" {
		reason = "休市日"
	}
	return fmt.Sprintf("📅 台股休市通知\n\n今天是%s，因此沒有開盤，交易暫停一日。", reason)
}

// FormatSummary renders the run summary for the /last command.
func FormatSummary(batch *model.AdvisoryBatch) string {
	if batch == nil {
		return "尚無執行紀錄"
	}
	if batch.Skipped {
		return fmt.Sprintf("📋 %s 休市: %s", model.DateKey(batch.AsOf), batch.SkipReason)
	}
	s := batch.Summary
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 分析摘要 | %s\n\n", model.DateKey(batch.AsOf)))
	b.WriteString(fmt.Sprintf("總計分析: %d 檔\n", s.Total))
	b.WriteString(fmt.Sprintf("🔴 買進: %d | 🔵 賣出: %d | 無建議: %d\n", s.Buy, s.Sell, s.None))
	b.WriteString(fmt.Sprintf("歷史不足: %d | 資料缺失: %d | 資料錯誤: %d\n", s.InsufficientHistory, s.DataUnavailable, s.InvalidInput))
	if s.Duration > 0 {
		b.WriteString(fmt.Sprintf("耗時: %.1f 秒\n", s.Duration.Seconds()))
	}
	buys, sells := batch.Signals()
	if len(buys)+len(sells) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatBatch(batch, strategy.Config{}))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatConfig renders the thresholds for the /config command.
func FormatConfig(cfg strategy.Config) string {
	var b strings.Builder
	b.WriteString("⚙️ 參數設定\n\n")
	b.WriteString(fmt.Sprintf("KDJ 週期: %d\n", cfg.OscillatorWindow))
	b.WriteString(fmt.Sprintf("訊號模式: %s\n", cfg.SignalMode))
	b.WriteString(fmt.Sprintf("成交量倍數: %.1f\n\n", cfg.VolumeMultiplier))
	b.WriteString(Conditions(cfg))
	return b.String()
}
