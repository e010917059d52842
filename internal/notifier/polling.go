package notifier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"StockSentinel/internal/logger"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// pollRetryDelay is the pause after a failed getUpdates call.
var pollRetryDelay = 5 * time.Second

// StartPolling long-polls for commands from the configured chat. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler, log *logger.Logger) {
	offset := 0
	pause := func() {
		select {
		case <-ctx.Done():
		case <-time.After(pollRetryDelay):
		}
	}

	for {
		if ctx.Err() != nil {
			log.Info("telegram polling stopped")
			return
		}

		resp, err := t.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"offset":  strconv.Itoa(offset),
				"timeout": "30",
			}).
			Get(t.method("getUpdates"))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Warn("polling request failed", logger.Error(err))
			pause()
			continue
		}

		var result struct {
			OK     bool             `json:"ok"`
			Result []telegramUpdate `json:"result"`
		}
		if err := json.Unmarshal(resp.Body(), &result); err != nil || !result.OK {
			log.Warn("bad polling response", logger.Int("status", resp.StatusCode()), logger.Error(err))
			pause()
			continue
		}

		for _, update := range result.Result {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			if strconv.FormatInt(update.Message.Chat.ID, 10) != t.ChatID {
				log.Warn("ignoring command from unknown chat", logger.Any("chat_id", update.Message.Chat.ID))
				continue
			}
			text := strings.TrimSpace(update.Message.Text)
			log.Info("received command", logger.String("command", text))
			if reply := handler(ctx, text); reply != "" {
				if err := t.Send(ctx, reply); err != nil {
					log.Error("send reply failed", logger.Error(err))
				}
			}
		}
	}
}
