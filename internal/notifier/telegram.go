package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	client   *resty.Client
	apiURL   string
	BotToken string
	ChatID   string
}

// NewTelegramNotifier creates a notifier on the given client.
func NewTelegramNotifier(client *resty.Client, apiURL, botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		client:   client,
		apiURL:   strings.TrimRight(apiURL, "/"),
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.apiURL, t.BotToken, name)
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": t.ChatID,
			"text":    text,
		}).
		Post(t.method("sendMessage"))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
