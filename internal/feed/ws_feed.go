// Package feed delivers market data into the engine: a websocket feed for
// live mode, a bus-backed dispatcher for out-of-process consumers, and a CSV
// replay source for backtests.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/trident/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// TickHandler is called for each decoded market data tick.
type TickHandler func(ctx context.Context, tick domain.Tick)

// wsTick is the wire shape of one bar-resolution update.
type wsTick struct {
	Type       string  `json:"type"`
	Instrument string  `json:"instrument"`
	Time       string  `json:"time"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
}

// wsCommand is the subscription request sent after connecting.
type wsCommand struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments"`
}

// WSFeed connects to the market data websocket, subscribes to the configured
// instruments, and invokes the handler for each tick. It reconnects with
// exponential backoff on disconnect.
type WSFeed struct {
	wsURL       string
	instruments []string
	onTick      TickHandler
	logger      *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewWSFeed creates a feed for the given instruments.
func NewWSFeed(wsURL string, instruments []string, onTick TickHandler, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		wsURL:       wsURL,
		instruments: instruments,
		onTick:      onTick,
		logger:      logger.With(slog.String("component", "ws_feed")),
		done:        make(chan struct{}),
	}
}

// Run connects and reads until ctx is canceled, reconnecting with backoff on
// disconnect.
func (f *WSFeed) Run(ctx context.Context) error {
	if len(f.instruments) == 0 {
		f.logger.Info("no instruments to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsCommand{Op: "subscribe", Instruments: f.instruments}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("feed subscribed", slog.Int("instruments", len(f.instruments)))

	// Ping loop keeps the connection alive; reader exits on error.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", domain.ErrWSDisconnect)
		}
		f.handleMessage(ctx, data)
	}
}

func (f *WSFeed) handleMessage(ctx context.Context, data []byte) {
	var msg wsTick
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("feed: bad message", slog.Int("payload_len", len(data)))
		return
	}
	if msg.Type != "" && msg.Type != "tick" {
		return
	}
	if msg.Instrument == "" {
		return
	}

	ts := time.Now().UTC()
	if msg.Time != "" {
		if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
			ts = t
		}
	}

	f.onTick(ctx, domain.Tick{
		Instrument: msg.Instrument,
		Time:       ts,
		Bid:        msg.Bid,
		Ask:        msg.Ask,
		High:       msg.High,
		Low:        msg.Low,
	})
}
