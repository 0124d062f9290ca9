// Package notify posts a message to Discord or Telegram whenever the
// coordinator credits a round's best solution.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tos-network/coal-miner/internal/config"
	"github.com/tos-network/coal-miner/internal/util"
)

const (
	maxRetries     = 3
	retryBaseDelay = 2 * time.Second
)

// Notifier posts round-result notifications to the configured webhook.
type Notifier struct {
	cfg    *config.WebhookConfig
	client *http.Client
}

// NewNotifier builds a Notifier. Posting is a no-op while cfg.Enabled is
// false.
func NewNotifier(cfg *config.WebhookConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// RoundResult is the subset of a credited round a notification reports.
type RoundResult struct {
	Difficulty uint32
	EarnedCoal int64
	EarnedOre  int64
}

// NotifyRoundResult sends the configured webhook a message describing a
// round the coordinator just credited. Non-blocking: delivery happens on
// its own goroutine.
func (n *Notifier) NotifyRoundResult(r RoundResult) {
	if !n.cfg.Enabled || n.cfg.URL == "" {
		return
	}

	switch n.cfg.Kind {
	case "discord":
		go n.sendDiscord(r)
	case "telegram":
		go n.sendTelegram(r)
	default:
		util.Warnf("notify: unknown webhook kind %q, not sending", n.cfg.Kind)
	}
}

type discordEmbed struct {
	Title     string         `json:"title,omitempty"`
	Color     int            `json:"color,omitempty"`
	Fields    []discordField `json:"fields,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds,omitempty"`
}

func (n *Notifier) sendDiscord(r RoundResult) {
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title: "Round submitted",
			Color: 0x00FF00,
			Fields: []discordField{
				{Name: "Difficulty", Value: fmt.Sprintf("%d", r.Difficulty), Inline: true},
				{Name: "Earned coal", Value: formatGrains(r.EarnedCoal), Inline: true},
				{Name: "Earned ore", Value: formatGrains(r.EarnedOre), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("notify: failed to marshal Discord message: %v", err)
		return
	}
	n.postWithRetry(n.cfg.URL, body)
}

type telegramMessage struct {
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) sendTelegram(r RoundResult) {
	text := fmt.Sprintf(
		"*Round submitted*\nDifficulty: `%d`\nEarned coal: `%s`\nEarned ore: `%s`",
		r.Difficulty, formatGrains(r.EarnedCoal), formatGrains(r.EarnedOre),
	)

	body, err := json.Marshal(telegramMessage{Text: text, ParseMode: "Markdown"})
	if err != nil {
		util.Warnf("notify: failed to marshal Telegram message: %v", err)
		return
	}
	n.postWithRetry(n.cfg.URL, body)
}

func (n *Notifier) postWithRetry(url string, body []byte) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBaseDelay * time.Duration(1<<uint(attempt-1)))
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			time.Sleep(5 * time.Second)
			continue
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("notify: webhook delivery failed after %d attempts: %v", maxRetries, lastErr)
	}
}

func formatGrains(grains int64) string {
	const tokenDecimals = 11
	whole := grains / 1e11
	frac := grains % 1e11
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%0*d", whole, tokenDecimals, frac)
}
