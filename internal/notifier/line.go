package notifier

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// LineNotifier pushes text messages through the LINE Messaging API.
type LineNotifier struct {
	client *resty.Client
	apiURL string
	token  string
	userID string
}

// NewLineNotifier creates a LINE push notifier.
func NewLineNotifier(client *resty.Client, apiURL, token, userID string) *LineNotifier {
	return &LineNotifier{client: client, apiURL: apiURL, token: token, userID: userID}
}

func (l *LineNotifier) Name() string { return "line" }

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePush struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// Send pushes text to the configured user.
func (l *LineNotifier) Send(ctx context.Context, text string) error {
	resp, err := l.client.R().
		SetContext(ctx).
		SetAuthToken(l.token).
		SetHeader("Content-Type", "application/json").
		SetBody(linePush{To: l.userID, Messages: []lineMessage{{Type: "text", Text: text}}}).
		Post(l.apiURL)
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("line API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
