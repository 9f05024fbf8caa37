package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers alerts through the Bot API sendMessage call.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPI,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

// WithAPIBase points the sender at a different Bot API host.
func (t *TelegramSender) WithAPIBase(base string) *TelegramSender {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

// Send renders the alert as HTML. Only critical alerts ring the chat.
func (t *TelegramSender) Send(ctx context.Context, alert Alert) error {
	msg := telegramMessage{
		ChatID:                t.chatID,
		Text:                  telegramText(alert),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		DisableNotification:   !alert.Critical(),
	}
	if err := postJSON(ctx, t.client, t.apiBase+"/bot"+t.token+"/sendMessage", msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

func telegramText(a Alert) string {
	var b strings.Builder
	if a.Critical() {
		b.WriteString("🚨 ")
	}
	b.WriteString("<b>" + html.EscapeString(a.Title) + "</b>")
	if a.Message != "" {
		b.WriteString("\n" + html.EscapeString(a.Message))
	}
	if a.Event != "" {
		b.WriteString("\n<code>" + html.EscapeString(a.Event) + "</code>")
	}
	return b.String()
}
