package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/trident/internal/domain"
)

// Embed colors, decimal RGB as Discord expects.
const (
	discordColorGreen = 0x2ecc71
	discordColorRed   = 0xe74c3c
	discordColorBlue  = 0x3498db
)

var _ Sender = (*DiscordSender)(nil)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// DiscordSender delivers lifecycle events to a Discord webhook as structured
// embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the event to the webhook as a single embed carrying the group,
// instrument and price details as inline fields.
func (d *DiscordSender) Send(ctx context.Context, ev domain.LifecycleEvent) error {
	payload := map[string]any{
		"embeds": []discordEmbed{discordEmbedFor(ev)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func discordEmbedFor(ev domain.LifecycleEvent) discordEmbed {
	title, message := FormatEvent(ev)

	e := discordEmbed{
		Title:       title,
		Description: message,
		Color:       discordColor(ev),
	}
	if !ev.Time.IsZero() {
		e.Timestamp = ev.Time.UTC().Format(time.RFC3339)
	}

	addField := func(name, value string) {
		if value == "" {
			return
		}
		e.Fields = append(e.Fields, discordField{Name: name, Value: value, Inline: true})
	}

	addField("Group", ev.GroupID)
	addField("Instrument", ev.Instrument)
	addField("Direction", string(ev.Direction))
	if ev.Price != 0 {
		addField("Price", formatPrice(ev.Price))
	}
	if ev.Stop != 0 {
		addField("Stop", formatPrice(ev.Stop))
	}
	if ev.PnL != 0 {
		addField("PnL", formatPrice(ev.PnL))
	}
	addField("Reason", ev.Reason)

	return e
}

// discordColor maps the event to an embed color: red for rejections, timeouts
// and losing closes, green for profitable closes, blue for everything else.
func discordColor(ev domain.LifecycleEvent) int {
	switch ev.Type {
	case domain.EventVenueRejected, domain.EventGroupTimedOut:
		return discordColorRed
	case domain.EventGroupClosed, domain.EventLegClosed:
		if ev.PnL < 0 {
			return discordColorRed
		}
		return discordColorGreen
	default:
		return discordColorBlue
	}
}

func formatPrice(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
