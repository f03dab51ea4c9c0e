package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/domain"
)

func TestDiscordSendEmbed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ev := domain.LifecycleEvent{
		Type:       domain.EventLegClosed,
		GroupID:    "g-1",
		LegID:      "g-1-leg-0",
		Instrument: "XAUUSD",
		Direction:  domain.DirectionLong,
		Price:      2930,
		Reason:     "closed_tp",
		PnL:        24,
		Time:       at,
	}
	require.NoError(t, s.Send(context.Background(), ev))

	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Contains(t, e.Title, "Leg closed XAUUSD")
	assert.Equal(t, discordColorGreen, e.Color)
	assert.Equal(t, "2026-03-14T09:30:00Z", e.Timestamp)

	fields := map[string]string{}
	for _, f := range e.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "g-1", fields["Group"])
	assert.Equal(t, "XAUUSD", fields["Instrument"])
	assert.Equal(t, "long", fields["Direction"])
	assert.Equal(t, "2930.0", fields["Price"])
	assert.Equal(t, "24.0", fields["PnL"])
	assert.Equal(t, "closed_tp", fields["Reason"])
}

func TestDiscordColorByOutcome(t *testing.T) {
	assert.Equal(t, discordColorRed, discordColor(domain.LifecycleEvent{Type: domain.EventVenueRejected}))
	assert.Equal(t, discordColorRed, discordColor(domain.LifecycleEvent{Type: domain.EventGroupTimedOut}))
	assert.Equal(t, discordColorRed, discordColor(domain.LifecycleEvent{Type: domain.EventGroupClosed, PnL: -12}))
	assert.Equal(t, discordColorGreen, discordColor(domain.LifecycleEvent{Type: domain.EventGroupClosed, PnL: 40}))
	assert.Equal(t, discordColorBlue, discordColor(domain.LifecycleEvent{Type: domain.EventGroupOpened}))
	assert.Equal(t, discordColorBlue, discordColor(domain.LifecycleEvent{Type: domain.EventTrailingUpdated}))
}

func TestDiscordSendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), domain.LifecycleEvent{Type: domain.EventGroupClosed, Instrument: "XAUUSD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
