package feed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeBarsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplayFeedsBarsInOrder(t *testing.T) {
	path := writeBarsFile(t, `time,open,high,low,close
2026-03-02T09:00:00Z,2870,2885,2865,2880
2026-03-02T10:00:00Z,2880,2905,2878,2900
1709373600,2900,2935,2898,2930
`)

	var ticks []domain.Tick
	r := NewReplay(path, "XAUUSD", func(_ context.Context, tick domain.Tick) {
		ticks = append(ticks, tick)
	}, discard())

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, ticks, 3)

	assert.Equal(t, "XAUUSD", ticks[0].Instrument)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), ticks[0].Time)
	assert.Equal(t, 2885.0, ticks[0].High)
	assert.Equal(t, 2865.0, ticks[0].Low)
	assert.Equal(t, 2880.0, ticks[0].Mid())

	// Unix-seconds timestamps are accepted too.
	assert.Equal(t, int64(1709373600), ticks[2].Time.Unix())
	assert.True(t, ticks[0].Time.Before(ticks[1].Time))
}

func TestReplayWithoutHeader(t *testing.T) {
	path := writeBarsFile(t, "2026-03-02T09:00:00Z,2870,2885,2865,2880\n")

	var count int
	r := NewReplay(path, "XAUUSD", func(_ context.Context, _ domain.Tick) { count++ }, discard())

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, count)
}

func TestReplayFailsOnMalformedRow(t *testing.T) {
	path := writeBarsFile(t, `time,open,high,low,close
2026-03-02T09:00:00Z,2870,not-a-number,2865,2880
`)

	r := NewReplay(path, "XAUUSD", func(_ context.Context, _ domain.Tick) {}, discard())
	assert.Error(t, r.Run(context.Background()))
}

func TestReplayMissingFile(t *testing.T) {
	r := NewReplay("/nonexistent/bars.csv", "XAUUSD", func(_ context.Context, _ domain.Tick) {}, discard())
	assert.Error(t, r.Run(context.Background()))
}
