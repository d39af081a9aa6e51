package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Notifier is the fire-and-forget external sink. Send never returns an
// error: delivery is best-effort and must not affect the calling operation.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// TelegramNotifier posts messages to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

type TelegramOption func(*TelegramNotifier)

func WithBaseURL(u string) TelegramOption {
	return func(n *TelegramNotifier) { n.baseURL = u }
}

func NewTelegramNotifier(token, chatID string, opts ...TelegramOption) *TelegramNotifier {
	n := &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *TelegramNotifier) Send(ctx context.Context, text string) {
	if n.token == "" || n.chatID == "" {
		return
	}
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		log.Warnf("[WARN] notify: failed to build telegram request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warnf("[WARN] notify: telegram send failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warnf("[WARN] notify: telegram responded %d", resp.StatusCode)
	}
}

// Nop drops every message; used when Telegram is not configured and in tests.
type Nop struct{}

func (Nop) Send(context.Context, string) {}
