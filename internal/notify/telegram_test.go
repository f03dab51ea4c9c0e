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

func TestTelegramSendPayload(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok-123", "chat-9")
	s.apiBase = srv.URL

	ev := domain.LifecycleEvent{
		Type:       domain.EventTrailingUpdated,
		GroupID:    "g-1",
		Instrument: "XAUUSD",
		Direction:  domain.DirectionLong,
		Stop:       2914.5,
		Time:       time.Now(),
	}
	require.NoError(t, s.Send(context.Background(), ev))

	assert.Equal(t, "/bottok-123/sendMessage", path)
	assert.Equal(t, "chat-9", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	// The stop's decimal point must arrive escaped or Telegram rejects the
	// message with a parse error.
	assert.Contains(t, got["text"], `2914\.5`)
	assert.Contains(t, got["text"], "*Stop tightened XAUUSD*")
}

func TestTelegramSendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request: can't parse entities", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat")
	s.apiBase = srv.URL

	err := s.Send(context.Background(), domain.LifecycleEvent{Type: domain.EventGroupClosed, Instrument: "XAUUSD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `group\=g\-1 pnl\=\+24\.00`, escapeMarkdownV2("group=g-1 pnl=+24.00"))
	assert.Equal(t, `\*bold\* \[link\]\(x\)`, escapeMarkdownV2("*bold* [link](x)"))
	assert.Equal(t, "plain text", escapeMarkdownV2("plain text"))
}
