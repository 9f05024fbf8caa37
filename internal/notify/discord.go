package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Embed colours.
const (
	discordRed   = 0xE74C3C
	discordGreen = 0x2ECC71
	discordGrey  = 0x95A5A6
)

// Discord caps an embed description at 4096 characters.
const discordMaxDescription = 4096

// DiscordSender posts alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: &http.Client{Timeout: sendTimeout}}
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Send posts the alert; Discord answers 204.
func (d *DiscordSender) Send(ctx context.Context, alert Alert) error {
	embed := discordEmbed{
		Title:       alert.Title,
		Description: truncateRunes(alert.Message, discordMaxDescription),
		Color:       discordColor(alert),
	}
	if !alert.At.IsZero() {
		embed.Timestamp = alert.At.UTC().Format(time.RFC3339)
	}
	if alert.Event != "" {
		embed.Footer = &discordFooter{Text: alert.Event}
	}
	if err := postJSON(ctx, d.client, d.webhookURL, discordMessage{Embeds: []discordEmbed{embed}}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

func discordColor(a Alert) int {
	switch {
	case a.Critical():
		return discordRed
	case a.Event == EventGameSettled:
		return discordGreen
	default:
		return discordGrey
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
