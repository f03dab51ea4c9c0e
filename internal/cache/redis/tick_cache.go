package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/trident/internal/domain"
)

// TickCache implements domain.TickCache using Redis hashes. The latest tick
// per instrument lives at key "tick:{instrument}" with bid/ask/high/low
// fields and a Unix-nanosecond timestamp.
type TickCache struct {
	rdb *redis.Client
}

var _ domain.TickCache = (*TickCache)(nil)

// NewTickCache creates a TickCache backed by the given Client.
func NewTickCache(c *Client) *TickCache {
	return &TickCache{rdb: c.Underlying()}
}

func tickKey(instrument string) string {
	return "tick:" + instrument
}

// SetTick stores the latest tick for an instrument.
func (tc *TickCache) SetTick(ctx context.Context, tick domain.Tick) error {
	fields := map[string]interface{}{
		"bid":  formatFloat(tick.Bid),
		"ask":  formatFloat(tick.Ask),
		"high": formatFloat(tick.High),
		"low":  formatFloat(tick.Low),
		"ts":   strconv.FormatInt(tick.Time.UnixNano(), 10),
	}
	if err := tc.rdb.HSet(ctx, tickKey(tick.Instrument), fields).Err(); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", tick.Instrument, err)
	}
	return nil
}

// GetTick retrieves the latest tick for an instrument. It returns
// domain.ErrNotFound when no tick has been stored.
func (tc *TickCache) GetTick(ctx context.Context, instrument string) (domain.Tick, error) {
	vals, err := tc.rdb.HGetAll(ctx, tickKey(instrument)).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", instrument, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}

	tick := domain.Tick{Instrument: instrument}
	if tick.Bid, err = parseField(vals, "bid", instrument); err != nil {
		return domain.Tick{}, err
	}
	if tick.Ask, err = parseField(vals, "ask", instrument); err != nil {
		return domain.Tick{}, err
	}
	if tick.High, err = parseField(vals, "high", instrument); err != nil {
		return domain.Tick{}, err
	}
	if tick.Low, err = parseField(vals, "low", instrument); err != nil {
		return domain.Tick{}, err
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Tick{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: parse tick ts %s: %w", instrument, err)
	}
	tick.Time = time.Unix(0, tsNano).UTC()
	return tick, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseField(vals map[string]string, field, instrument string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse tick %s %s: %w", field, instrument, err)
	}
	return f, nil
}
